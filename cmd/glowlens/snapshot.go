package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/store"
)

var (
	snapshotTopology string
	snapshotJSON     bool
	snapshotClear    bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the last saved result",
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotTopology, "topology", "face", "Subject kind: face or hand")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print the stored result as JSON")
	snapshotCmd.Flags().BoolVar(&snapshotClear, "clear", false, "Delete the snapshot")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	topo, err := landmark.ByKind(snapshotTopology)
	if err != nil {
		return err
	}

	st, err := store.New(settings.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if snapshotClear {
		if err := st.Snapshots().Delete(ctx, topo.Kind()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		fmt.Printf("Cleared %s\n", store.SnapshotKey(topo.Kind()))
		return nil
	}

	snap, err := st.Snapshots().Get(ctx, topo.Kind())
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("No %s result saved yet\n", topo.Kind())
		return nil
	}
	if err != nil {
		return err
	}

	if snapshotJSON {
		out, err := json.MarshalIndent(snap.Data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	res, err := snap.Result()
	if err != nil {
		return err
	}
	fmt.Printf("%s, saved %s\n\n", snap.Key, snap.SavedAt.Format("2006-01-02 15:04"))
	printResult(res)
	return nil
}

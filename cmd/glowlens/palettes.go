package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/color"
)

var palettesTopology string

var palettesCmd = &cobra.Command{
	Use:   "palettes",
	Short: "Print the color palettes",
	Long: `Print the curated palettes. Face analysis uses the four seasons and hand
analysis uses the five skin tones.`,
	RunE: runPalettes,
}

func init() {
	rootCmd.AddCommand(palettesCmd)

	palettesCmd.Flags().StringVar(&palettesTopology, "topology", "", "Only show palettes for face or hand")
}

type paletteGroup struct {
	name       string
	categories []color.Category
}

func runPalettes(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load()
	if err != nil {
		return err
	}

	switch palettesTopology {
	case "", "face", "hand":
	default:
		return fmt.Errorf("unknown topology %q", palettesTopology)
	}

	var groups []paletteGroup
	if palettesTopology != "hand" {
		groups = append(groups, paletteGroup{"Seasons (face)", color.Seasons()})
	}
	if palettesTopology != "face" {
		groups = append(groups, paletteGroup{"Tones (hand)", color.Tones()})
	}

	for _, g := range groups {
		fmt.Printf("%s\n\n", g.name)
		for _, c := range g.categories {
			p, err := cat.Palette(string(c))
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n  %s\n", c, p.Title, p.Description)
			for _, sw := range p.Swatches {
				fmt.Printf("  %-7s %s\n", sw.Hex, sw.Name)
			}
			fmt.Println()
		}
	}
	return nil
}

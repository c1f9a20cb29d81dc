package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/glowlens/internal/analysis"
	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/detector"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/render"
	"github.com/ayusman/glowlens/internal/session"
	"github.com/ayusman/glowlens/internal/store"
)

var (
	analyzeImage     string
	analyzeTopology  string
	analyzeLandmarks string
	analyzeOut       string
	analyzeSave      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a still image",
	Long: `Run a full analysis session against a still image and export the result card.
Landmarks are detected with MediaPipe unless a precomputed landmark file is
given with --landmarks.`,
	Example: `  glowlens analyze --image selfie.jpg
  glowlens analyze --image hand.png --topology hand --out ./cards --save`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeImage, "image", "", "Image file to analyze (JPEG, PNG, WebP, BMP or TIFF)")
	analyzeCmd.Flags().StringVar(&analyzeTopology, "topology", "face", "Subject kind: face or hand")
	analyzeCmd.Flags().StringVar(&analyzeLandmarks, "landmarks", "", "JSON landmark file to use instead of MediaPipe")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "Directory for the exported card (default: <data dir>/exports)")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Save the result as the last snapshot")
	analyzeCmd.MarkFlagRequired("image")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	topo, err := landmark.ByKind(analyzeTopology)
	if err != nil {
		return err
	}
	src, err := capture.LoadStill(analyzeImage)
	if err != nil {
		return err
	}

	var backend detector.Backend
	if analyzeLandmarks != "" {
		backend = detector.NewFileBackend(analyzeLandmarks)
	} else {
		backend = detector.NewMediaPipeBackend(detector.MediaPipeConfig{
			Topology: topo,
			Python:   settings.Python,
			ModelDir: settings.ModelDir,
		}, log)
	}
	adapter := detector.NewAdapter(backend, detector.Config{
		Topology:      topo,
		MinConfidence: settings.MinConfidence,
	}, log)
	defer adapter.Close()

	cat, err := catalog.Load()
	if err != nil {
		return err
	}
	analyzer, err := analysis.New(cat)
	if err != nil {
		return err
	}

	cfg := session.Config{
		Source:            src,
		Detector:          adapter,
		Analyzer:          analyzer,
		Renderer:          render.New(0),
		LightingThreshold: settings.LowLight(topo),
		LightingStride:    1,
		StageDelay:        settings.StageDelay,
		Logger:            log,
	}
	if analyzeSave {
		st, err := store.New(settings.DatabasePath())
		if err != nil {
			return err
		}
		defer st.Close()
		cfg.Snapshots = st
	}

	sess, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer sess.Stop()

	res, err := analyze(ctx, sess)
	if err != nil {
		return err
	}
	printResult(res)

	if analyzeSave {
		if err := sess.Save(ctx); err != nil {
			return err
		}
		fmt.Printf("Saved snapshot %s\n", store.SnapshotKey(res.Kind()))
	}

	art, err := sess.Export(ctx)
	if err != nil {
		return explain(err)
	}
	out := analyzeOut
	if out == "" {
		out = settings.ExportDir()
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(out, art.Filename)
	if err := os.WriteFile(path, art.Data, 0644); err != nil {
		return fmt.Errorf("write card: %w", err)
	}
	fmt.Printf("Card written to %s\n", path)
	return nil
}

// analyze drives sess from camera start to its result, showing the
// analysis stages on a progress bar.
func analyze(ctx context.Context, sess *session.Session) (*analysis.Result, error) {
	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if err := sess.StartCamera(ctx); err != nil {
		return nil, explain(err)
	}
	sess.Tick()
	if st := sess.Status(); st.Lighting.IsLow {
		fmt.Fprintf(os.Stderr, "Warning: the image is dark (luminance %.0f), results may be off\n", st.Lighting.AverageLuminance)
	}
	if err := sess.Capture(); err != nil {
		return nil, explain(err)
	}

	bar := progressbar.NewOptions(sess.Status().StageCount,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil, session.ErrStopped
			}
			switch e.Type {
			case session.EventStage:
				bar.Describe(e.Label)
				bar.Set(e.Stage)
			case session.EventResult:
				bar.Finish()
				return e.Result, nil
			case session.EventError:
				bar.Exit()
				return nil, explain(sess.Status().Err)
			}
		}
	}
}

// explain adds the user-facing remedy to err.
func explain(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	a := session.AffordanceFor(err)
	if a.Message == "" {
		return err
	}
	return fmt.Errorf("%w\n%s", err, a.Message)
}

func printResult(res *analysis.Result) {
	rec := res.Recommendation
	fmt.Printf("%s shape: %s\n", res.Kind(), res.Geometry.Shape)
	fmt.Printf("  %s\n", rec.Title)
	fmt.Printf("  %s\n", rec.Summary)
	for _, tip := range rec.Tips {
		fmt.Printf("  - %s\n", tip)
	}

	p := res.Color.Palette
	fmt.Printf("\nColor: %s (%s)\n", res.Color.Category, p.Title)
	fmt.Printf("  skin %s, reference %s\n", res.Color.Sampled.Skin.Hex(), res.Color.Sampled.Reference.Hex())
	for _, sw := range p.Swatches {
		fmt.Printf("  %-7s %s\n", sw.Hex, sw.Name)
	}
	fmt.Println()
}

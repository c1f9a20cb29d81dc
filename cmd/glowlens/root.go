package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/glowlens/internal/config"
	"github.com/ayusman/glowlens/internal/logger"
)

var (
	// settings and log are set by the root command before any subcommand runs
	settings *config.Config
	log      *logrus.Logger

	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "glowlens",
	Short: "Face shape, hand shape and color season analysis",
	Long: `Glowlens classifies face or hand geometry and skin coloring from a camera
or a still image, recommends a matching palette and exports a shareable card.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		l, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return err
		}

		settings, log = cfg, l
		return nil
	},
}

// Execute runs the root command with a context canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file to load (default: .env when present)")
}

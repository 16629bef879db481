package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundctl/ground-control/internal/config"
)

var (
	configPath string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "groundctl",
		Short: "Ground Control - AI agent orchestration system",
		Long: `Ground Control coordinates AI agents working on software projects.
It loads tickets, plans them into atomic tasks with an LLM, and executes
the tasks through coding agents with dependency-aware scheduling.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			if err := config.LoadDotEnv(".env"); err != nil {
				slog.Warn("could not load .env", "error", err)
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default gc.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

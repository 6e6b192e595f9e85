package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/config"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "studioflow",
	Short: "Creative agency agent orchestrator",
	Long: `StudioFlow runs the agency's AI agents behind one orchestrator.

Agents parse briefs, plan content, draft proposals and track sentiment.
Requests arrive over HTTP, NATS, Telegram or the scheduler, and results
are persisted as projects, tasks, communications and metrics.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv("STUDIOFLOW_CONFIG", configPath)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("studioflow %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $STUDIOFLOW_CONFIG or config/studioflow.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// logLevel backs the default logger so a reload can change it in place.
var logLevel = new(slog.LevelVar)

func setupLogger(cfg config.LogConfig) {
	logLevel.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "studioflow"))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

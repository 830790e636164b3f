package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voicechat/config"
)

const version = "2.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "voicechat",
		Short: "Talk to a chat model with your voice",
		Long: `voicechat transcribes a spoken clip, asks a chat model for a reply
with the recent conversation as context, stores the exchange and answers
with synthesized speech.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, setupLogger(cfg.Log), nil
	}

	rootCmd.AddCommand(
		serveCmd(load),
		resetCmd(load),
		askCmd(load),
		recordCmd(load),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

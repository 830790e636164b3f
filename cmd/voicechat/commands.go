package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voicechat/config"
	"voicechat/internal/application"
	"voicechat/internal/domain"
	"voicechat/internal/infra/audio"
)

type loader func() (*config.Config, *slog.Logger, error)

func serveCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			server := audio.NewServer(audio.ServerConfig{
				Addr:           cfg.Server.Addr,
				UploadDir:      cfg.Server.UploadDir,
				Version:        version,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) * 1024 * 1024,
				Protected:      []string{cfg.History.Path, cfg.TTS.Output, cfg.Server.FixedClip},
			}, a.pipeline, a.history, audio.NewClipResolver(cfg.Server.FixedClip), logger)
			if a.metrics != nil {
				server.WithMetrics(a.metrics, a.metrics.Handler())
			}

			if err := server.Start(ctx); err != nil {
				return err
			}

			logger.Info("starting voice chat server", "addr", cfg.Server.Addr, "version", version)
			<-ctx.Done()
			logger.Info("shutting down")

			return server.Stop()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func resetCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			history, err := buildHistory(cfg.History, logger)
			if err != nil {
				return err
			}
			if c, ok := history.(interface{ Close() error }); ok {
				defer c.Close()
			}

			if err := history.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}
			fmt.Println("conversation reset")
			return nil
		},
	}
}

func askCmd(load loader) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "ask <audio-file>",
		Short: "Run one turn on an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return runTurn(cmd.Context(), cfg, logger, domain.PathInput(args[0]), out)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the reply audio here")
	return cmd
}

func recordCmd(load loader) *cobra.Command {
	var seconds int
	var out string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and run one turn",
		Long: `Record a clip from the default input device and run it through the
pipeline. Requires a build with -tags portaudio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
			defer stop()

			fmt.Printf("Recording for %d seconds...\n", seconds)
			clip, err := audio.NewMicrophone(cfg.Server.SampleRate, logger).
				Record(ctx, time.Duration(seconds)*time.Second)
			if err != nil {
				return fmt.Errorf("recording: %w", err)
			}

			return runTurn(cmd.Context(), cfg, logger, domain.BytesInput("recording.wav", clip), out)
		},
	}

	cmd.Flags().IntVarP(&seconds, "seconds", "s", 5, "recording length")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the reply audio here")
	return cmd
}

func runTurn(ctx context.Context, cfg *config.Config, logger *slog.Logger, in domain.AudioInput, out string) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.Run(ctx, in)
	if err != nil {
		var stageErr *application.StageError
		if errors.As(err, &stageErr) {
			return fmt.Errorf("turn failed while %s (%s): %w", stageErr.Stage, stageErr.Reason, err)
		}
		return err
	}

	fmt.Printf("You:       %s\n", result.Transcript)
	fmt.Printf("Assistant: %s\n", result.Reply.Text)
	if result.Reply.Degraded() {
		fmt.Printf("(fallback reply: %s)\n", result.Reply.Kind)
	}
	fmt.Printf("Audio:     %s (%d bytes)\n", result.AudioPath, len(result.Audio))

	if out != "" {
		if err := os.WriteFile(out, result.Audio, 0644); err != nil {
			return fmt.Errorf("writing reply audio: %w", err)
		}
	}
	return nil
}

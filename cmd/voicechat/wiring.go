package main

import (
	"context"
	"fmt"
	"log/slog"

	"voicechat/config"
	"voicechat/internal/application"
	"voicechat/internal/infra/anthropic"
	"voicechat/internal/infra/elevenlabs"
	"voicechat/internal/infra/gemini"
	"voicechat/internal/infra/openai"
	"voicechat/internal/infra/pushover"
	"voicechat/internal/infra/store"
	"voicechat/internal/infra/whisper"
	"voicechat/internal/metrics"
)

// app holds everything a command needs to run turns.
type app struct {
	history  application.HistoryStore
	pipeline *application.Pipeline
	metrics  *metrics.Metrics
	closers  []func() error
}

func (a *app) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	history, err := buildHistory(cfg.History, logger)
	if err != nil {
		return nil, err
	}
	a.history = history
	if sq, ok := history.(*store.SQLiteStore); ok {
		a.closers = append(a.closers, sq.Close)
	}

	completer, err := buildChat(ctx, cfg.Chat)
	if err != nil {
		a.Close()
		return nil, err
	}

	chat := application.NewChatOrchestrator(completer, history, logger,
		application.WithPersona(cfg.Chat.Persona),
		application.WithWindow(cfg.History.Window),
	)

	tts := elevenlabs.NewClient(cfg.TTS.APIKey, cfg.TTS.VoiceID, cfg.TTS.ModelID)
	synth := application.NewSynthesizer(tts, cfg.TTS.Output, logger)

	var notifier application.Notifier = &application.NoopNotifier{}
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	}

	var observer application.Observer = application.NoopObserver{}
	if cfg.MetricsEnabled() {
		a.metrics = metrics.NewMetrics(cfg.Metrics.Namespace)
		observer = a.metrics
	}

	a.pipeline = application.NewPipeline(
		buildTranscriber(cfg.Whisper, logger),
		chat,
		history,
		synth,
		notifier,
		observer,
		logger,
	)

	logCapabilities(cfg, logger)
	return a, nil
}

func buildHistory(cfg config.HistoryConfig, logger *slog.Logger) (application.HistoryStore, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		return s, nil
	default:
		return store.NewJSONStore(cfg.Path, logger), nil
	}
}

func buildChat(ctx context.Context, cfg config.ChatConfig) (application.ChatCompleter, error) {
	switch cfg.Provider {
	case "openai":
		base := cfg.BaseURL
		if base == "" {
			base = openai.OpenAIBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return openai.NewChatClient(cfg.APIKey, base, model), nil
	case "anthropic":
		if cfg.BaseURL != "" {
			return anthropic.NewClaudeClientWithURL(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
		}
		return anthropic.NewClaudeClient(cfg.APIKey, cfg.Model), nil
	case "gemini":
		client, err := gemini.NewClientWithURL(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return openai.NewChatClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	}
}

func buildTranscriber(cfg config.WhisperConfig, logger *slog.Logger) *application.Transcriber {
	cli := whisper.NewCLI(cfg.Binary, cfg.Model, cfg.Language, logger)

	local := func() *application.Transcriber {
		return application.NewFileTranscriber(cli, cfg.TempDir, logger)
	}
	hosted := func() *application.Transcriber {
		base, model := cfg.BaseURL, cfg.Model
		if cfg.Provider == "openai" {
			if base == "" {
				base = openai.OpenAIBaseURL
			}
		} else {
			if base == "" {
				base = openai.GroqBaseURL
			}
			if model == "" {
				model = "whisper-large-v3"
			}
		}
		return application.NewStreamTranscriber(openai.NewWhisperClient(cfg.APIKey, base, model, cfg.Language), logger)
	}

	switch cfg.Mode {
	case "local":
		if !cli.Available() {
			logger.Warn("whisper binary not found, transcription will fail", "binary", cfg.Binary)
		}
		return local()
	case "hosted":
		return hosted()
	default:
		if cli.Available() {
			return local()
		}
		if cfg.APIKey != "" {
			return hosted()
		}
		logger.Warn("no speech-to-text available: install whisper or set a transcription API key")
		return application.NewStreamTranscriber(nil, logger)
	}
}

func logCapabilities(cfg *config.Config, logger *slog.Logger) {
	logger.Info("capabilities",
		"chat_provider", cfg.Chat.Provider,
		"chat_key", cfg.Chat.APIKey != "",
		"whisper_mode", cfg.Whisper.Mode,
		"tts_key", cfg.TTS.APIKey != "",
		"history", cfg.History.Backend,
		"pushover", cfg.Pushover.Enabled,
	)
}

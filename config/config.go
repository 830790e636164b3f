package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	Chat     ChatConfig     `yaml:"chat"`
	TTS      TTSConfig      `yaml:"tts"`
	Pushover PushoverConfig `yaml:"pushover"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	UploadDir   string `yaml:"upload_dir"`
	FixedClip   string `yaml:"fixed_clip"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	SampleRate  int    `yaml:"sample_rate"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Window  int    `yaml:"window"`
}

type WhisperConfig struct {
	// Mode is "local" (whisper CLI), "hosted" (HTTP API) or "auto", which
	// prefers the CLI when it is installed.
	Mode     string `yaml:"mode"`
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Binary   string `yaml:"binary"`
	TempDir  string `yaml:"temp_dir"`
}

type ChatConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Persona  string `yaml:"persona"`
}

type TTSConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
	Output  string `yaml:"output"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, expanding ${VAR} references. A .env file
// in the working directory is loaded first without overriding the
// environment. A missing config file is not an error: defaults and
// environment credentials are used instead.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploads"
	}
	if c.Server.FixedClip == "" {
		c.Server.FixedClip = "voice.mp3"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 25
	}
	if c.Server.SampleRate == 0 {
		c.Server.SampleRate = 16000
	}
	if c.History.Backend == "" {
		c.History.Backend = "json"
	}
	if c.History.Path == "" {
		if c.History.Backend == "sqlite" {
			c.History.Path = "history.db"
		} else {
			c.History.Path = "stored_data.json"
		}
	}
	if c.History.Window == 0 {
		c.History.Window = 5
	}
	if c.Whisper.Mode == "" {
		c.Whisper.Mode = "auto"
	}
	if c.Whisper.Provider == "" {
		c.Whisper.Provider = "groq"
	}
	if c.Whisper.Binary == "" {
		c.Whisper.Binary = "whisper"
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "groq"
	}
	if c.TTS.Output == "" {
		c.TTS.Output = "voice.mp3"
	}
	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "voicechat"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv fills credentials left empty by the file from the conventional
// environment variables of each provider.
func (c *Config) applyEnv() {
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = os.Getenv(providerKeyEnv(c.Chat.Provider))
	}
	if c.Whisper.APIKey == "" {
		c.Whisper.APIKey = os.Getenv(providerKeyEnv(c.Whisper.Provider))
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = os.Getenv("ELEVEN_LABS_API_KEY")
	}
	if c.Pushover.Token == "" {
		c.Pushover.Token = os.Getenv("PUSHOVER_TOKEN")
	}
	if c.Pushover.UserKey == "" {
		c.Pushover.UserKey = os.Getenv("PUSHOVER_USER_KEY")
	}
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "GROQ_API_KEY"
	}
}

func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// Validate rejects values the wiring cannot act on.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("history.backend: unknown backend %q", c.History.Backend)
	}
	switch c.Chat.Provider {
	case "groq", "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("chat.provider: unknown provider %q", c.Chat.Provider)
	}
	switch c.Whisper.Mode {
	case "auto", "local", "hosted":
	default:
		return fmt.Errorf("whisper.mode: unknown mode %q", c.Whisper.Mode)
	}
	switch c.Whisper.Provider {
	case "groq", "openai":
	default:
		return fmt.Errorf("whisper.provider: unknown provider %q", c.Whisper.Provider)
	}
	if c.History.Window < 0 {
		return fmt.Errorf("history.window: must not be negative")
	}
	return nil
}

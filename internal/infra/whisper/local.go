package whisper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"voicechat/internal/domain"
)

// CLI runs the openai-whisper command line tool against a file on disk and
// reads back the plain-text transcript it writes.
type CLI struct {
	binary   string
	model    string
	language string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCLI(binary, model, language string, logger *slog.Logger) *CLI {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "base"
	}
	return &CLI{
		binary:   binary,
		model:    model,
		language: language,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// Available reports whether the binary can be found.
func (c *CLI) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

func (c *CLI) TranscribeFile(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("whisper cli %q: %w", c.binary, domain.ErrUnavailable)
	}

	outDir, err := os.MkdirTemp("", "whisper-out-*")
	if err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		path,
		"--model", c.model,
		"--output_format", "txt",
		"--output_dir", outDir,
		"--fp16", "False",
	}
	if c.language != "" {
		args = append(args, "--language", c.language)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running whisper: %w: %s", err, tail(stderr.String(), 512))
	}
	c.logger.Debug("whisper finished", "path", path, "model", c.model, "duration", time.Since(start))

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	data, err := os.ReadFile(filepath.Join(outDir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

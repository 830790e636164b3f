package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"voicechat/internal/application"
)

// ClipResolver locates the fixed clip replayed by the GET endpoint. A
// relative name is tried against the working directory first, then next to
// the executable.
type ClipResolver struct {
	name   string
	exeDir string
}

func NewClipResolver(name string) *ClipResolver {
	c := &ClipResolver{name: name}
	if exe, err := os.Executable(); err == nil {
		c.exeDir = filepath.Dir(exe)
	}
	return c
}

// WithExecutableDir overrides the fallback directory.
func (c *ClipResolver) WithExecutableDir(dir string) *ClipResolver {
	c.exeDir = dir
	return c
}

func (c *ClipResolver) Name() string {
	return c.name
}

// Resolve returns the first existing candidate or an error wrapping
// application.ErrSourceNotFound.
func (c *ClipResolver) Resolve() (string, error) {
	for _, candidate := range c.candidates() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	wd, _ := os.Getwd()
	return "", fmt.Errorf("%w: %s not in %s", application.ErrSourceNotFound, c.name, wd)
}

func (c *ClipResolver) candidates() []string {
	if filepath.IsAbs(c.name) {
		return []string{c.name}
	}

	candidates := []string{c.name}
	if c.exeDir != "" {
		candidates = append(candidates, filepath.Join(c.exeDir, c.name))
	}
	return candidates
}

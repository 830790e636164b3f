//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Microphone records a clip from the default input device.
type Microphone struct {
	sampleRate int
	logger     *slog.Logger
}

func NewMicrophone(sampleRate int, logger *slog.Logger) *Microphone {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Microphone{sampleRate: sampleRate, logger: logger}
}

// Record captures up to d of audio and returns it as WAV. Leading and
// trailing silence is trimmed; ctx cancellation stops early and keeps what
// was captured.
func (m *Microphone) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	framesPerBuffer := 1024
	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	m.logger.Info("recording", "seconds", d.Seconds(), "sampleRate", m.sampleRate)

	total := int(d.Seconds() * float64(m.sampleRate))
	samples := make([]int16, 0, total)

	for len(samples) < total {
		select {
		case <-ctx.Done():
			return m.encode(samples)
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		samples = append(samples, buffer...)
	}

	return m.encode(samples)
}

func (m *Microphone) encode(samples []int16) ([]byte, error) {
	samples = trimSilence(samples, 500, m.sampleRate/10)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no speech captured")
	}
	return EncodeWAV(samples, m.sampleRate), nil
}

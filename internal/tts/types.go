// Package tts abstracts text-to-speech backends that stream PCM chunks.
package tts

import (
	"context"
	"fmt"

	"github.com/askdb-io/askdb-core/internal/config"
)

// Chunk is one slice of synthesized PCM audio.
type Chunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer produces audio for text. The consumer cancels by cancelling ctx
// and simply not pulling further chunks; producers must select on ctx so an
// abandoned stream cannot leak a goroutine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan Chunk, <-chan error)
}

// FromConfig builds the configured backend.
func FromConfig(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.Voice, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

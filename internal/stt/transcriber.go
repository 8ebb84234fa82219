// Package stt abstracts speech-to-text backends behind a narrow contract.
package stt

import (
	"context"
	"fmt"

	"github.com/askdb-io/askdb-core/internal/config"
)

// Transcriber turns a complete utterance into text. Empty text on silence is
// a valid result, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// FromConfig builds the configured backend.
func FromConfig(cfg config.STTConfig) (Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockTranscriber(), nil
	case "exec":
		return NewExecTranscriber(cfg.Command, cfg.Language)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

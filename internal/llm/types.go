package llm

import (
	"context"
	"fmt"

	"github.com/askdb-io/askdb-core/internal/config"
)

// Request describes a language model prompt. Format may be set to "json" to
// constrain the model to a JSON object response.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	Format      string
}

// Generator defines a pluggable LLM backend. Implementations are best-effort
// oracles: callers must treat failures as degradable, never fatal.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// FromConfig builds the configured backend.
func FromConfig(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

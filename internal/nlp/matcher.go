package nlp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askdb-io/askdb-core/internal/catalog"
	"github.com/askdb-io/askdb-core/internal/llm"
)

// Strategy selects how input is scored against catalog patterns.
type Strategy string

const (
	StrategyLexical   Strategy = "lexical"
	StrategyEmbedding Strategy = "embedding"
	StrategyLLM       Strategy = "llm"
)

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLexical, StrategyEmbedding, StrategyLLM:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown matcher strategy %q", s)
	}
}

// Match is the ephemeral result of a successful match.
type Match struct {
	Template *catalog.Template
	Pattern  string
	Score    float64
	Strategy Strategy
}

// Engine scores normalized input against the catalog with an interchangeable
// strategy. A nil *Match with a nil error means "no match": callers only
// advance to materialization on a non-nil result.
type Engine struct {
	catalog *catalog.Catalog
	index   *embeddingIndex
	gen     llm.Generator
	log     *slog.Logger
}

// NewEngine builds a match engine. embedder may be nil when the embedding
// strategy is never selected; gen may be nil likewise for the llm strategy.
func NewEngine(cat *catalog.Catalog, embedder Embedder, maxInflight int, gen llm.Generator, log *slog.Logger) *Engine {
	e := &Engine{
		catalog: cat,
		gen:     gen,
		log:     log.With(slog.String("component", "matcher")),
	}
	if embedder != nil {
		e.index = newEmbeddingIndex(cat, embedder, maxInflight)
	}
	return e
}

// Match normalizes text and returns the best template at or above threshold,
// or nil if nothing qualifies.
func (e *Engine) Match(ctx context.Context, text string, strategy Strategy, threshold float64) (*Match, error) {
	normalized := Normalize(text)

	var (
		m   *Match
		err error
	)
	switch strategy {
	case StrategyLexical:
		m = e.matchLexical(normalized, threshold)
	case StrategyEmbedding:
		if e.index == nil {
			return nil, fmt.Errorf("embedding strategy selected but no embedder configured")
		}
		m, err = e.index.match(ctx, normalized, threshold)
	case StrategyLLM:
		if e.gen == nil {
			return nil, fmt.Errorf("llm strategy selected but no generator configured")
		}
		m, err = e.matchLLM(ctx, normalized)
	default:
		return nil, fmt.Errorf("unknown matcher strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		e.log.Info("no match", slog.String("input", normalized), slog.String("strategy", string(strategy)))
		return nil, nil
	}
	m.Strategy = strategy
	e.log.Info("matched",
		slog.String("input", normalized),
		slog.String("pattern", m.Pattern),
		slog.Float64("score", m.Score),
		slog.String("strategy", string(strategy)))
	return m, nil
}

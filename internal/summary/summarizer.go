// Package summary turns query results into a spoken-friendly sentence.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/llm"
)

const systemPrompt = "You are a SQL database assistant. Generate natural, conversational summaries of query results. Keep the response under 3 sentences."

// Summarizer phrases results through a generator, degrading to a
// deterministic fallback built from row count and field names whenever the
// generator is absent or fails.
type Summarizer struct {
	gen llm.Generator
	log *slog.Logger
}

func New(gen llm.Generator, log *slog.Logger) *Summarizer {
	return &Summarizer{gen: gen, log: log.With(slog.String("component", "summarizer"))}
}

// Summarize never fails; the worst case is the templated fallback.
func (s *Summarizer) Summarize(ctx context.Context, question string, rows []db.Row) string {
	if s.gen == nil {
		return Fallback(rows)
	}

	out, err := s.gen.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(question, rows),
		Temperature: 0.2,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			s.log.Warn("summarization failed, using fallback", slog.String("error", err.Error()))
		}
		return Fallback(rows)
	}
	return strings.TrimSpace(out)
}

func buildPrompt(question string, rows []db.Row) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\nTotal rows: %d\n", question, len(rows))
	if len(rows) > 0 {
		fmt.Fprintf(&sb, "Fields: %s\n", strings.Join(rows[0].Fields, ", "))
		sb.WriteString("Sample rows:\n")
		for i, row := range rows {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sb, "%v\n", row.Map())
		}
	}
	sb.WriteString("Summarize the key numbers and insights conversationally.")
	return sb.String()
}

// Fallback is the deterministic summary used when the oracle is unavailable.
func Fallback(rows []db.Row) string {
	if len(rows) == 0 {
		return "I found no results for your query."
	}
	fields := strings.Join(rows[0].Fields, ", ")
	if len(rows) == 1 {
		return fmt.Sprintf("I found 1 result with fields %s.", fields)
	}
	return fmt.Sprintf("I found %d results with fields %s.", len(rows), fields)
}

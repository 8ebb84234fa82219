package nlp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/askdb-io/askdb-core/internal/llm"
)

const noMatchSentinel = "none"

// matchLLM asks the generator to classify the input as one exact catalog
// pattern or the "none" sentinel. The answer is never trusted blindly: any
// response outside the catalog is logged as an anomaly and treated as no
// match. A classification carries score 1, which any threshold in [0,1]
// accepts.
func (e *Engine) matchLLM(ctx context.Context, normalized string) (*Match, error) {
	var sb strings.Builder
	sb.WriteString("Task: match the user's input to the most similar predefined pattern.\n\nAvailable patterns:\n")
	for _, p := range e.catalog.AllPatterns() {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\nUser input: \"")
	sb.WriteString(normalized)
	sb.WriteString("\"\n\nReturn the EXACT matching pattern, or \"")
	sb.WriteString(noMatchSentinel)
	sb.WriteString("\" if nothing matches well. No explanations.")

	answer, err := e.gen.Generate(ctx, llm.Request{
		System:      "You match user queries to one of a fixed list of patterns. Respond with the pattern text only.",
		Prompt:      sb.String(),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	answer = strings.Trim(strings.TrimSpace(answer), `"'`)
	if answer == "" || strings.EqualFold(answer, noMatchSentinel) {
		return nil, nil
	}

	tpl, ok := e.catalog.TemplateFor(answer)
	if !ok {
		e.log.Warn("classifier answered outside the catalog",
			slog.String("answer", answer),
			slog.String("input", normalized))
		return nil, nil
	}
	return &Match{Template: tpl, Pattern: answer, Score: 1}, nil
}

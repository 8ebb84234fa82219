package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/askdb-io/askdb-core/internal/llm"
)

// orderRules is the ordered extraction cascade for order identifiers. The
// first rule that matches wins; rule order goes from the most specific
// phrasing to the loosest.
var orderRules = []*regexp.Regexp{
	regexp.MustCompile(`order\s*(?:id)?\s*[#]?\s*(\d+)`),
	regexp.MustCompile(`order\s*status\s*(\d+)`),
	regexp.MustCompile(`status\s*(?:of)?\s*order\s*(\d+)`),
	regexp.MustCompile(`value\s*(?:of)?\s*order\s*(\d+)`),
	regexp.MustCompile(`order\s*(\d+)\s*(?:status|value)`),
	regexp.MustCompile(`#\s*(\d+)`),
	regexp.MustCompile(`(\d+)\s*status`),
	regexp.MustCompile(`order\s*(\d+)`),
}

const extractSystemPrompt = `You are a number extractor that outputs JSON.
The JSON object must use the schema: {"order_id": <integer or null>}`

// oracleResult is the fixed output schema the extraction oracle is held to.
type oracleResult struct {
	OrderID *int64 `json:"order_id"`
}

// Extractor derives typed parameters from free text. The regex cascade runs
// first; the oracle, when configured, is consulted only if no rule matched.
type Extractor struct {
	oracle llm.Generator
	log    *slog.Logger
}

func NewExtractor(oracle llm.Generator, log *slog.Logger) *Extractor {
	return &Extractor{oracle: oracle, log: log.With(slog.String("component", "extractor"))}
}

// Extract returns the extracted parameters and the de-parameterized form of
// the input (the literal value replaced by its placeholder token) for use by
// the match engine. It never fails: an unreachable or unhelpful oracle just
// means no parameters.
func (e *Extractor) Extract(ctx context.Context, text string) (map[string]any, string) {
	// Rules run on lowercased raw text: normalization strips the '#' and
	// punctuation some rules key on. The match engine normalizes later.
	lowered := strings.ToLower(text)

	for _, rule := range orderRules {
		m := rule.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		return map[string]any{"order_id": id}, deparameterize(lowered, m[1], "order_id")
	}

	if e.oracle == nil {
		return map[string]any{}, lowered
	}

	id, ok := e.consultOracle(ctx, text)
	if !ok {
		return map[string]any{}, lowered
	}
	return map[string]any{"order_id": id}, deparameterize(lowered, strconv.FormatInt(id, 10), "order_id")
}

func (e *Extractor) consultOracle(ctx context.Context, text string) (int64, bool) {
	out, err := e.oracle.Generate(ctx, llm.Request{
		System: extractSystemPrompt,
		Prompt: "Extract the order number from this text: " + text,
		Format: "json",
	})
	if err != nil {
		e.log.Warn("extraction oracle failed", slog.String("error", err.Error()))
		return 0, false
	}
	var result oracleResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		e.log.Warn("extraction oracle returned malformed JSON", slog.String("error", err.Error()))
		return 0, false
	}
	if result.OrderID == nil {
		return 0, false
	}
	return *result.OrderID, true
}

// deparameterize replaces the extracted literal with its placeholder token so
// matching is not confused by the raw number.
func deparameterize(text, literal, param string) string {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(literal) + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, fmt.Sprintf("{%s}", param))
}

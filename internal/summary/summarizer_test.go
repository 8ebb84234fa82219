package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(_ context.Context, _ llm.Request) (string, error) {
	return s.response, s.err
}

func sampleRows() []db.Row {
	return []db.Row{
		{Fields: []string{"order_status"}, Values: []any{"shipped"}},
		{Fields: []string{"order_status"}, Values: []any{"pending"}},
	}
}

func TestSummarizeUsesGenerator(t *testing.T) {
	s := New(&stubGenerator{response: "Two orders, one shipped and one pending."}, testLogger())
	got := s.Summarize(context.Background(), "orders by status", sampleRows())
	if got != "Two orders, one shipped and one pending." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	s := New(&stubGenerator{err: errors.New("model down")}, testLogger())
	got := s.Summarize(context.Background(), "orders by status", sampleRows())
	if got != "I found 2 results with fields order_status." {
		t.Fatalf("unexpected fallback: %q", got)
	}
}

func TestSummarizeWithoutGenerator(t *testing.T) {
	s := New(nil, testLogger())
	if got := s.Summarize(context.Background(), "q", nil); got != "I found no results for your query." {
		t.Fatalf("unexpected empty summary: %q", got)
	}
}

func TestFallbackSingleRow(t *testing.T) {
	rows := []db.Row{{Fields: []string{"customer_count"}, Values: []any{int64(12)}}}
	if got := Fallback(rows); got != "I found 1 result with fields customer_count." {
		t.Fatalf("unexpected fallback: %q", got)
	}
}

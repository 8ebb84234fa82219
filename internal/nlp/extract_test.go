package nlp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/askdb-io/askdb-core/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Generate(_ context.Context, _ llm.Request) (string, error) {
	s.calls++
	return s.response, s.err
}

func TestExtractFirstRuleWins(t *testing.T) {
	ex := NewExtractor(nil, testLogger())
	params, deparam := ex.Extract(context.Background(), "Status of Order 40")
	if params["order_id"] != int64(40) {
		t.Fatalf("expected order_id=40, got %v", params)
	}
	if deparam != "status of order {order_id}" {
		t.Fatalf("unexpected de-parameterized text: %q", deparam)
	}
}

func TestExtractVariants(t *testing.T) {
	ex := NewExtractor(nil, testLogger())
	cases := []struct {
		in   string
		want int64
	}{
		{"What is the value of Order 40", 40},
		{"order id 123", 123},
		{"#456", 456},
		{"order 789 status", 789},
		{"check value of order 555", 555},
	}
	for _, c := range cases {
		params, _ := ex.Extract(context.Background(), c.in)
		if params["order_id"] != c.want {
			t.Errorf("Extract(%q): expected %d, got %v", c.in, c.want, params)
		}
	}
}

func TestExtractNoMatchWithoutOracle(t *testing.T) {
	ex := NewExtractor(nil, testLogger())
	params, deparam := ex.Extract(context.Background(), "show all customers")
	if len(params) != 0 {
		t.Fatalf("expected no parameters, got %v", params)
	}
	if deparam != "show all customers" {
		t.Fatalf("expected input passed through, got %q", deparam)
	}
}

func TestExtractOracleFallback(t *testing.T) {
	gen := &stubGenerator{response: `{"order_id": 77}`}
	ex := NewExtractor(gen, testLogger())
	params, _ := ex.Extract(context.Background(), "look up the seventy seventh order thing")
	if params["order_id"] != int64(77) {
		t.Fatalf("expected oracle order_id=77, got %v", params)
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single oracle call, got %d", gen.calls)
	}
}

func TestExtractOracleSkippedWhenRuleMatches(t *testing.T) {
	gen := &stubGenerator{response: `{"order_id": 99}`}
	ex := NewExtractor(gen, testLogger())
	params, _ := ex.Extract(context.Background(), "status of order 40")
	if params["order_id"] != int64(40) {
		t.Fatalf("expected regex result 40, got %v", params)
	}
	if gen.calls != 0 {
		t.Fatalf("oracle should not be consulted when a rule matched, got %d calls", gen.calls)
	}
}

func TestExtractOracleFailureIsNonFatal(t *testing.T) {
	gen := &stubGenerator{err: errors.New("oracle down")}
	ex := NewExtractor(gen, testLogger())
	params, _ := ex.Extract(context.Background(), "no numbers here")
	if len(params) != 0 {
		t.Fatalf("expected empty parameters on oracle failure, got %v", params)
	}
}

func TestExtractOracleNullResult(t *testing.T) {
	gen := &stubGenerator{response: `{"order_id": null}`}
	ex := NewExtractor(gen, testLogger())
	params, _ := ex.Extract(context.Background(), "no numbers here")
	if len(params) != 0 {
		t.Fatalf("expected empty parameters on null oracle result, got %v", params)
	}
}

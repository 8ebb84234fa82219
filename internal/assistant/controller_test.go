package assistant

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/askdb-io/askdb-core/internal/catalog"
	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/nlp"
	"github.com/askdb-io/askdb-core/internal/protocol"
	"github.com/askdb-io/askdb-core/internal/summary"
	"github.com/askdb-io/askdb-core/internal/tts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingDeliverer captures every outbound frame. onFrame, when set, runs
// synchronously under the lock after each successful delivery.
type recordingDeliverer struct {
	mu      sync.Mutex
	frames  []protocol.Message
	stale   bool
	onFrame func(protocol.Message)
}

func (d *recordingDeliverer) Deliver(_ string, msg protocol.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stale {
		return ErrStaleTarget
	}
	d.frames = append(d.frames, msg)
	if d.onFrame != nil {
		d.onFrame(msg)
	}
	return nil
}

func (d *recordingDeliverer) byType(t protocol.MessageType) []protocol.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []protocol.Message
	for _, f := range d.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

type fakeExecutor struct {
	mu    sync.Mutex
	rows  []db.Row
	stmts []string
	args  [][]any
}

func (f *fakeExecutor) Query(_ context.Context, sql string, args ...any) ([]db.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return f.rows, nil
}

type stubTranscriber struct{ text string }

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.text, nil
}

func testController(t *testing.T, cfg ControllerConfig) *Controller {
	t.Helper()
	log := testLogger()
	if cfg.Extractor == nil {
		cfg.Extractor = nlp.NewExtractor(nil, log)
	}
	if cfg.Engine == nil {
		cfg.Engine = nlp.NewEngine(catalog.Builtin(), nil, 0, nil, log)
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = summary.New(nil, log)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = nlp.StrategyLexical
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.7
	}
	return NewController(cfg, log)
}

func TestTextQueryPipeline(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"customer_count"}, Values: []any{int64(42)}},
	}}
	c := testController(t, ControllerConfig{
		Executor:    executor,
		Synthesizer: tts.NewMockSynth(24000, 1),
		Deliverer:   deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "how many customers",
	})

	sqlFrames := deliverer.byType(protocol.MessageSQL)
	if len(sqlFrames) != 1 || !strings.Contains(sqlFrames[0].Query, "COUNT(DISTINCT customer_id)") {
		t.Fatalf("unexpected sql frames: %+v", sqlFrames)
	}
	if len(deliverer.byType(protocol.MessageResults)) != 1 {
		t.Fatalf("expected one results frame")
	}
	responses := deliverer.byType(protocol.MessageResponse)
	if len(responses) != 1 || responses[0].Text != "I found 1 result with fields customer_count." {
		t.Fatalf("unexpected responses: %+v", responses)
	}
	if len(deliverer.byType(protocol.MessageStreamStart)) != 1 {
		t.Fatalf("expected audio stream start")
	}
	if len(deliverer.byType(protocol.MessageAudioChunk)) == 0 {
		t.Fatalf("expected audio chunks")
	}
	if len(deliverer.byType(protocol.MessageStreamEnd)) != 1 {
		t.Fatalf("expected exactly one stream end")
	}
	if got := c.Attach("client-1").State(); got != StateListening {
		t.Fatalf("expected session back in listening, got %q", got)
	}
}

func TestOrderStatusQueryBindsParameter(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"order_status"}, Values: []any{"shipped"}},
	}}
	c := testController(t, ControllerConfig{
		Executor:  executor,
		Deliverer: deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "What is the status of order 41?",
	})

	if len(executor.stmts) != 1 {
		t.Fatalf("expected one executed statement, got %d", len(executor.stmts))
	}
	if executor.stmts[0] != "SELECT order_status FROM orders WHERE order_id = $1" {
		t.Fatalf("unexpected statement: %q", executor.stmts[0])
	}
	if len(executor.args[0]) != 1 || executor.args[0][0] != int64(41) {
		t.Fatalf("unexpected args: %+v", executor.args[0])
	}
}

func TestUnmatchedQuerySpeaksHelp(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{}
	c := testController(t, ControllerConfig{
		Executor:  executor,
		Deliverer: deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "what is the weather like today",
	})

	if len(executor.stmts) != 0 {
		t.Fatalf("executor should not run for unmatched input: %v", executor.stmts)
	}
	if len(deliverer.byType(protocol.MessageSQL)) != 0 {
		t.Fatalf("no sql frame expected for unmatched input")
	}
	responses := deliverer.byType(protocol.MessageResponse)
	if len(responses) != 1 || !strings.Contains(responses[0].Text, "orders database") {
		t.Fatalf("expected help response, got %+v", responses)
	}
}

func TestMutedSessionSkipsAudio(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"customer_count"}, Values: []any{int64(7)}},
	}}
	c := testController(t, ControllerConfig{
		Executor:    executor,
		Synthesizer: tts.NewMockSynth(24000, 1),
		Deliverer:   deliverer,
	})
	ctx := context.Background()

	sess := c.Attach("client-1")
	sess.SetMuted(true)
	sess.SetMuted(true)
	if !sess.Muted() {
		t.Fatalf("expected session muted")
	}

	c.Dispatch(ctx, "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "how many customers",
	})

	if len(deliverer.byType(protocol.MessageResponse)) != 1 {
		t.Fatalf("muted session must still get the text response")
	}
	if n := len(deliverer.byType(protocol.MessageAudioChunk)); n != 0 {
		t.Fatalf("muted session must get no audio, got %d chunks", n)
	}
	if len(deliverer.byType(protocol.MessageStreamStart)) != 0 {
		t.Fatalf("muted session must not see a stream start")
	}
	if len(deliverer.byType(protocol.MessageStreamEnd)) != 1 {
		t.Fatalf("stream end must close the turn even when muted")
	}
}

func TestToggleMuteCommand(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := testController(t, ControllerConfig{
		Executor:  &fakeExecutor{},
		Deliverer: deliverer,
	})
	ctx := context.Background()

	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandToggleMute})
	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandToggleMute})

	statuses := deliverer.byType(protocol.MessageStatus)
	if len(statuses) != 2 || statuses[0].Text != "muted" || statuses[1].Text != "unmuted" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
	if c.Attach("client-1").Muted() {
		t.Fatalf("expected session unmuted after double toggle")
	}
}

func TestStopCommandGoesIdle(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := testController(t, ControllerConfig{
		Executor:  &fakeExecutor{},
		Deliverer: deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{Type: protocol.CommandStop})

	if got := c.Attach("client-1").State(); got != StateIdle {
		t.Fatalf("expected idle after stop, got %q", got)
	}
	statuses := deliverer.byType(protocol.MessageStatus)
	if len(statuses) != 1 || statuses[0].Text != "stopped" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestInterruptStopsStreamAtChunkBoundary(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"order_status"}, Values: []any{"shipped"}},
		{Fields: []string{"order_status"}, Values: []any{"pending"}},
	}}
	c := testController(t, ControllerConfig{
		Executor:    executor,
		Synthesizer: tts.NewMockSynth(24000, 1),
		Deliverer:   deliverer,
	})
	sess := c.Attach("client-1")

	// Interrupt as soon as the first audio chunk goes out; the stream must
	// stop at the next boundary without truncating that chunk.
	deliverer.onFrame = func(msg protocol.Message) {
		if msg.Type == protocol.MessageAudioChunk {
			sess.Interrupt()
		}
	}

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "show orders by status",
	})

	chunks := deliverer.byType(protocol.MessageAudioChunk)
	if len(chunks) != 1 {
		t.Fatalf("expected the stream to stop after one chunk, got %d", len(chunks))
	}
	if len(deliverer.byType(protocol.MessageStreamEnd)) != 1 {
		t.Fatalf("stream end must be emitted after an interrupt")
	}
	if len(deliverer.byType(protocol.MessageError)) != 0 {
		t.Fatalf("an interrupt is not an error")
	}
	if got := sess.State(); got != StateListening {
		t.Fatalf("expected session back in listening, got %q", got)
	}
}

// onceEndlessSynth streams without end on its first use and finitely after,
// so a test can prove a stream terminated only because new input barged in.
type onceEndlessSynth struct {
	calls atomic.Int32
	inner tts.Synthesizer
}

func (s *onceEndlessSynth) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, <-chan error) {
	if s.calls.Add(1) > 1 {
		return s.inner.Synthesize(ctx, text)
	}
	chunks := make(chan tts.Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for i := 0; ; i++ {
			chunk := tts.Chunk{Sequence: i, SampleRate: 24000, Channels: 1, PCM: make([]byte, 320)}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

func TestNewQueryInterruptsInFlightSpeech(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"customer_count"}, Values: []any{int64(4)}},
	}}
	c := testController(t, ControllerConfig{
		Executor:    executor,
		Synthesizer: &onceEndlessSynth{inner: tts.NewMockSynth(24000, 1)},
		Deliverer:   deliverer,
	})

	// Dispatch a second query as soon as the first audio chunk goes out.
	var second sync.WaitGroup
	var fired atomic.Bool
	deliverer.onFrame = func(msg protocol.Message) {
		if msg.Type == protocol.MessageAudioChunk && fired.CompareAndSwap(false, true) {
			second.Add(1)
			go func() {
				defer second.Done()
				c.Dispatch(context.Background(), "client-1", protocol.Command{
					Type: protocol.CommandTextQuery,
					Text: "show recent orders",
				})
			}()
		}
	}

	// The first stream never ends on its own; only the second query's
	// barge-in can stop it, so returning at all proves the interrupt landed
	// at a chunk boundary.
	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "how many customers",
	})
	second.Wait()

	if n := len(deliverer.byType(protocol.MessageStreamEnd)); n != 2 {
		t.Fatalf("expected both turns to emit stream end, got %d", n)
	}
	if n := len(deliverer.byType(protocol.MessageResponse)); n != 2 {
		t.Fatalf("expected responses for both queries, got %d", n)
	}
	if len(deliverer.byType(protocol.MessageError)) != 0 {
		t.Fatalf("barge-in is not an error")
	}
	if got := c.Attach("client-1").State(); got != StateListening {
		t.Fatalf("expected session back in listening, got %q", got)
	}
}

func TestAudioCommandTranscribesThenQueries(t *testing.T) {
	deliverer := &recordingDeliverer{}
	executor := &fakeExecutor{rows: []db.Row{
		{Fields: []string{"customer_count"}, Values: []any{int64(3)}},
	}}
	c := testController(t, ControllerConfig{
		Executor:    executor,
		Transcriber: &stubTranscriber{text: "how many customers"},
		Deliverer:   deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type:  protocol.CommandAudioData,
		Audio: []byte{1, 2, 3},
	})

	transcripts := deliverer.byType(protocol.MessageTranscription)
	if len(transcripts) != 1 || transcripts[0].Text != "how many customers" {
		t.Fatalf("unexpected transcription frames: %+v", transcripts)
	}
	if len(executor.stmts) != 1 {
		t.Fatalf("expected the transcript to run the pipeline")
	}
}

func TestToggleListenGatesAudio(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := testController(t, ControllerConfig{
		Executor:    &fakeExecutor{},
		Transcriber: &stubTranscriber{text: "how many customers"},
		Deliverer:   deliverer,
	})
	ctx := context.Background()

	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandToggleListen})
	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandAudioData, Audio: []byte{1}})

	var sawIdle, sawNotListening bool
	for _, s := range deliverer.byType(protocol.MessageStatus) {
		switch s.Text {
		case "idle":
			sawIdle = true
		case "not_listening":
			sawNotListening = true
		}
	}
	if !sawIdle || !sawNotListening {
		t.Fatalf("expected idle and not_listening statuses, got %+v", deliverer.byType(protocol.MessageStatus))
	}

	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandToggleListen})
	if got := c.Attach("client-1").State(); got != StateListening {
		t.Fatalf("expected listening after second toggle, got %q", got)
	}
}

func TestInterruptCommandIsIdempotentWhenSilent(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := testController(t, ControllerConfig{
		Executor:  &fakeExecutor{},
		Deliverer: deliverer,
	})
	ctx := context.Background()

	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandInterrupt})
	c.Dispatch(ctx, "client-1", protocol.Command{Type: protocol.CommandInterrupt})

	statuses := deliverer.byType(protocol.MessageStatus)
	if len(statuses) != 2 {
		t.Fatalf("expected two interrupted statuses, got %+v", statuses)
	}
	if got := c.Attach("client-1").State(); got != StateListening {
		t.Fatalf("interrupting a silent session must not change state, got %q", got)
	}
}

func TestStaleTargetPrunesSession(t *testing.T) {
	deliverer := &recordingDeliverer{stale: true}
	c := testController(t, ControllerConfig{
		Executor:  &fakeExecutor{},
		Deliverer: deliverer,
	})

	c.Dispatch(context.Background(), "client-1", protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "how many customers",
	})

	if n := c.SessionCount(); n != 0 {
		t.Fatalf("expected stale session pruned, got %d sessions", n)
	}
}

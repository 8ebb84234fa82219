package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/askdb-io/askdb-core/internal/audit"
	"github.com/askdb-io/askdb-core/internal/catalog"
	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/nlp"
	"github.com/askdb-io/askdb-core/internal/protocol"
	"github.com/askdb-io/askdb-core/internal/stt"
	"github.com/askdb-io/askdb-core/internal/summary"
	"github.com/askdb-io/askdb-core/internal/tts"
)

// ErrStaleTarget is returned by a Deliverer whose client is gone for good.
// The controller prunes the session on sight of it.
var ErrStaleTarget = errors.New("delivery target gone")

// Deliverer pushes one outbound frame to a session's client. Implementations
// must be safe for concurrent use; ordering within a session is the
// controller's concern, not the deliverer's.
type Deliverer interface {
	Deliver(sessionID string, msg protocol.Message) error
}

const helpText = "I can answer questions about the orders database. " +
	"Try asking: how many customers do we have, show me all orders with status pending, " +
	"what is the status of order 5, or what were our top selling products."

// ControllerConfig carries the controller's collaborators. Transcriber,
// synthesizer and auditor may be nil; the corresponding features degrade to
// no-ops.
type ControllerConfig struct {
	Extractor   *nlp.Extractor
	Engine      *nlp.Engine
	Executor    db.Executor
	Summarizer  *summary.Summarizer
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	Auditor     *audit.Store
	Deliverer   Deliverer
	Strategy    nlp.Strategy
	Threshold   float64
}

// Controller owns the session table and runs the query pipeline: extract,
// match, materialize, execute, summarize, speak. External failures become
// user-visible error frames; the session always survives them.
type Controller struct {
	cfg ControllerConfig
	log *slog.Logger

	queries    metric.Int64Counter
	interrupts metric.Int64Counter

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewController(cfg ControllerConfig, log *slog.Logger) *Controller {
	meter := otel.Meter("askdb/assistant")
	queries, _ := meter.Int64Counter("askdb.queries.total",
		metric.WithDescription("Queries handled, partitioned by whether a template matched."))
	interrupts, _ := meter.Int64Counter("askdb.interrupts.total",
		metric.WithDescription("Speech streams stopped by an interrupt."))

	return &Controller{
		cfg:        cfg,
		log:        log.With(slog.String("component", "assistant")),
		queries:    queries,
		interrupts: interrupts,
		sessions:   make(map[string]*Session),
	}
}

// Attach returns the session for id, creating it in the listening state on
// first sight.
func (c *Controller) Attach(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[id]; ok {
		return sess
	}
	sess := newSession(id)
	c.sessions[sess.ID] = sess
	c.log.Info("session attached", slog.String("session_id", sess.ID))
	return sess
}

// Detach interrupts and removes a session. Safe to call for unknown ids.
func (c *Controller) Detach(id string) {
	c.mu.Lock()
	sess, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if ok {
		sess.Interrupt()
		c.log.Info("session detached", slog.String("session_id", id))
	}
}

// SessionCount reports the number of attached sessions.
func (c *Controller) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Dispatch routes one client command. Unknown types are rejected upstream by
// protocol.DecodeCommand, so the switch is exhaustive.
func (c *Controller) Dispatch(ctx context.Context, sessionID string, cmd protocol.Command) {
	sess := c.Attach(sessionID)

	switch cmd.Type {
	case protocol.CommandTextQuery:
		c.handleQuery(ctx, sess, cmd.Text)
	case protocol.CommandAudioData:
		c.handleAudio(ctx, sess, cmd.Audio)
	case protocol.CommandToggleMute:
		if sess.ToggleMute() {
			c.send(sess, protocol.Status("muted"))
		} else {
			c.send(sess, protocol.Status("unmuted"))
		}
	case protocol.CommandToggleListen:
		if sess.ToggleListening() {
			c.send(sess, protocol.Status("listening"))
		} else {
			c.send(sess, protocol.Status("idle"))
		}
	case protocol.CommandInterrupt:
		sess.Interrupt()
		c.send(sess, protocol.Status("interrupted"))
	case protocol.CommandStop:
		sess.Stop()
		c.send(sess, protocol.Status("stopped"))
	}
}

func (c *Controller) handleAudio(ctx context.Context, sess *Session, audio []byte) {
	if !sess.Listening() {
		c.send(sess, protocol.Status("not_listening"))
		return
	}
	if c.cfg.Transcriber == nil {
		c.send(sess, protocol.Error("Speech input is not enabled."))
		return
	}

	// Detected speech barges in: stop the in-flight stream before spending
	// time on transcription.
	if sess.State() == StateSpeaking {
		sess.Interrupt()
	}

	text, err := c.cfg.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		c.log.Warn("transcription failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		c.send(sess, protocol.Error("I could not understand the audio."))
		return
	}
	if strings.TrimSpace(text) == "" {
		c.send(sess, protocol.Status("silence"))
		return
	}

	c.send(sess, protocol.Message{Type: protocol.MessageTranscription, Text: text})
	c.handleQuery(ctx, sess, text)
}

// handleQuery runs the full pipeline for one utterance. Typed text is
// accepted even when the session is idle; only audio capture is gated on the
// listening state.
func (c *Controller) handleQuery(ctx context.Context, sess *Session, text string) {
	if strings.TrimSpace(text) == "" {
		c.send(sess, protocol.Error("I did not catch a question in that."))
		return
	}

	// New input while speaking interrupts the in-flight stream at its next
	// chunk boundary; the pipeline lock then serializes this query behind
	// the winding-down turn.
	if sess.State() == StateSpeaking {
		sess.Interrupt()
	}

	sess.pipeline.Lock()
	defer sess.pipeline.Unlock()

	sess.setState(StateProcessing)
	start := time.Now()

	params, working := c.cfg.Extractor.Extract(ctx, text)

	match, err := c.cfg.Engine.Match(ctx, working, c.cfg.Strategy, c.cfg.Threshold)
	if err != nil {
		c.log.Error("match engine failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		c.send(sess, protocol.Error("I could not process that query."))
		sess.finishTurn()
		return
	}
	if match == nil {
		c.queries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("matched", false)))
		c.speak(ctx, sess, helpText)
		return
	}
	c.queries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("matched", true)))

	stmt, args, err := catalog.Materialize(match.Template, params)
	if err != nil {
		c.log.Warn("materialization failed",
			slog.String("session_id", sess.ID),
			slog.String("template", match.Template.Name),
			slog.String("error", err.Error()))
		c.send(sess, protocol.Error("That query needs an order number, and I could not find one."))
		sess.finishTurn()
		return
	}
	c.send(sess, protocol.Message{Type: protocol.MessageSQL, Query: stmt, Timestamp: time.Now().UTC()})

	rows, err := c.cfg.Executor.Query(ctx, stmt, args...)
	if err != nil {
		c.log.Error("query execution failed",
			slog.String("session_id", sess.ID),
			slog.String("template", match.Template.Name),
			slog.String("error", err.Error()))
		c.send(sess, protocol.Error("The database query failed. Please try again."))
		sess.finishTurn()
		return
	}

	maps := make([]map[string]any, len(rows))
	for i, row := range rows {
		maps[i] = row.Map()
	}
	c.send(sess, protocol.Message{Type: protocol.MessageResults, Rows: maps, Timestamp: time.Now().UTC()})

	response := c.cfg.Summarizer.Summarize(ctx, text, rows)

	c.auditAppend(ctx, audit.Entry{
		SessionID: sess.ID,
		Statement: stmt,
		Strategy:  string(match.Strategy),
		Score:     match.Score,
		RowCount:  len(rows),
		LatencyMS: time.Since(start).Milliseconds(),
	})

	c.speak(ctx, sess, response)
}

// speak delivers the text response and, unless muted, streams synthesized
// audio. The text frame always goes out and the stream-end frame always
// closes the turn, muted or interrupted or not, so clients can key UI state
// off it unconditionally.
func (c *Controller) speak(ctx context.Context, sess *Session, text string) {
	sess.clearInterrupt()
	sess.setState(StateSpeaking)
	defer sess.finishTurn()

	if err := c.send(sess, protocol.Message{Type: protocol.MessageResponse, Text: text, Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	if c.cfg.Synthesizer == nil || sess.Muted() || !sess.Listening() {
		c.send(sess, protocol.Message{Type: protocol.MessageStreamEnd, Timestamp: time.Now().UTC()})
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := c.cfg.Synthesizer.Synthesize(ctx, text)

	c.send(sess, protocol.Message{Type: protocol.MessageStreamStart, Timestamp: time.Now().UTC()})
	defer c.send(sess, protocol.Message{Type: protocol.MessageStreamEnd, Timestamp: time.Now().UTC()})

	for chunk := range chunks {
		// Interrupts take effect at chunk boundaries: the chunk in flight
		// is never truncated.
		if sess.Interrupted() {
			sess.setState(StateInterrupted)
			c.interrupts.Add(ctx, 1)
			cancel()
			for range chunks {
			}
			c.log.Info("speech interrupted",
				slog.String("session_id", sess.ID),
				slog.Int("last_sequence", chunk.Sequence))
			return
		}
		msg := protocol.Message{
			Type:       protocol.MessageAudioChunk,
			PCM:        chunk.PCM,
			Sequence:   chunk.Sequence,
			SampleRate: chunk.SampleRate,
			Channels:   chunk.Channels,
			Timestamp:  time.Now().UTC(),
		}
		if err := c.send(sess, msg); err != nil {
			cancel()
			for range chunks {
			}
			return
		}
	}

	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("synthesis failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
	}
}

// send delivers one frame and prunes the session when the target is gone.
func (c *Controller) send(sess *Session, msg protocol.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	err := c.cfg.Deliverer.Deliver(sess.ID, msg)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStaleTarget) {
		c.Detach(sess.ID)
		return err
	}
	c.log.Warn("delivery failed",
		slog.String("session_id", sess.ID),
		slog.String("type", string(msg.Type)),
		slog.String("error", err.Error()))
	return err
}

func (c *Controller) auditAppend(ctx context.Context, e audit.Entry) {
	if c.cfg.Auditor == nil {
		return
	}
	if err := c.cfg.Auditor.Append(ctx, e); err != nil {
		c.log.Warn("audit append failed",
			slog.String("session_id", e.SessionID),
			slog.String("error", err.Error()))
	}
}

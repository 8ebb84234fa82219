package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/askdb-io/askdb-core/internal/assistant"
	"github.com/askdb-io/askdb-core/internal/bus"
	"github.com/askdb-io/askdb-core/internal/protocol"
)

// Relay bridges the assistant onto the message bus: commands arrive on
// askdb.cmd.<session> and responses go out on askdb.out.<session>. It lets
// headless clients drive the assistant without holding a websocket.
type Relay struct {
	client     *bus.Client
	controller *assistant.Controller
	log        *slog.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRelay(client *bus.Client, controller *assistant.Controller, log *slog.Logger) *Relay {
	return &Relay{
		client:     client,
		controller: controller,
		log:        log.With(slog.String("component", "relay")),
	}
}

// Start subscribes to the command subject space.
func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	sub, err := r.client.Conn().Subscribe(protocol.SubjectCommandPrefix+".*", func(msg *nats.Msg) {
		sessionID := sessionFromSubject(msg.Subject)
		if sessionID == "" {
			return
		}
		cmd, err := protocol.DecodeCommand(msg.Data)
		if err != nil {
			r.log.Warn("relay received bad command",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()))
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.controller.Dispatch(ctx, sessionID, cmd)
		}()
	})
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	r.sub = sub
	r.cancel = cancel
	r.mu.Unlock()

	r.log.Info("relay subscribed", slog.String("subject", protocol.SubjectCommandPrefix+".*"))
	return nil
}

// Stop unsubscribes and waits for in-flight dispatches.
func (r *Relay) Stop() {
	r.mu.Lock()
	sub, cancel := r.sub, r.cancel
	r.sub, r.cancel = nil, nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Deliver implements assistant.Deliverer by publishing the frame to the
// session's outbound subject.
func (r *Relay) Deliver(sessionID string, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(protocol.OutboundSubject(sessionID), data)
}

func sessionFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, protocol.SubjectCommandPrefix+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return ""
	}
	return rest
}

// Deliverer fans a frame to the websocket when the client is connected and
// falls back to the relay otherwise. With neither available the target is
// stale and the controller prunes the session.
type Deliverer struct {
	WS    *WSServer
	Relay *Relay
}

func (d Deliverer) Deliver(sessionID string, msg protocol.Message) error {
	if d.WS != nil {
		err := d.WS.Deliver(sessionID, msg)
		if err == nil || !errors.Is(err, assistant.ErrStaleTarget) {
			return err
		}
	}
	if d.Relay != nil {
		return d.Relay.Deliver(sessionID, msg)
	}
	return assistant.ErrStaleTarget
}

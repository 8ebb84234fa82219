package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/askdb-io/askdb-core/internal/assistant"
	"github.com/askdb-io/askdb-core/internal/bus"
	"github.com/askdb-io/askdb-core/internal/catalog"
	"github.com/askdb-io/askdb-core/internal/config"
	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/natsserver"
	"github.com/askdb-io/askdb-core/internal/nlp"
	"github.com/askdb-io/askdb-core/internal/protocol"
	"github.com/askdb-io/askdb-core/internal/summary"
)

func TestRelayQueryRoundTrip(t *testing.T) {
	log := testLogger()

	embedded, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(embedded.Shutdown)

	client, err := bus.Connect(config.BusConfig{
		Servers:        []string{embedded.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	deliverer := &Deliverer{}
	controller := assistant.NewController(assistant.ControllerConfig{
		Extractor: nlp.NewExtractor(nil, log),
		Engine:    nlp.NewEngine(catalog.Builtin(), nil, 0, nil, log),
		Executor: &fakeExecutor{rows: []db.Row{
			{Fields: []string{"customer_count"}, Values: []any{int64(9)}},
		}},
		Summarizer: summary.New(nil, log),
		Deliverer:  deliverer,
		Strategy:   nlp.StrategyLexical,
		Threshold:  0.7,
	}, log)

	relay := NewRelay(client, controller, log)
	deliverer.Relay = relay

	if err := relay.Start(context.Background()); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(relay.Stop)

	sub, err := client.Conn().SubscribeSync(protocol.OutboundSubject("gamma"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })

	cmd, err := json.Marshal(protocol.Command{
		Type: protocol.CommandTextQuery,
		Text: "how many customers",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := client.Publish(protocol.CommandSubject("gamma"), cmd); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var response string
	deadline := time.Now().Add(5 * time.Second)
	for {
		raw, err := sub.NextMsg(time.Until(deadline))
		if err != nil {
			t.Fatalf("waiting for frames (response so far %q): %v", response, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if msg.Type == protocol.MessageResponse {
			response = msg.Text
		}
		if msg.Type == protocol.MessageStreamEnd {
			break
		}
	}
	if response != "I found 1 result with fields customer_count." {
		t.Fatalf("unexpected response: %q", response)
	}
}

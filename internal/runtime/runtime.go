// Package runtime assembles the assistant's components and runs them as one
// process.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/askdb-io/askdb-core/internal/assistant"
	"github.com/askdb-io/askdb-core/internal/audit"
	"github.com/askdb-io/askdb-core/internal/bus"
	"github.com/askdb-io/askdb-core/internal/catalog"
	"github.com/askdb-io/askdb-core/internal/config"
	"github.com/askdb-io/askdb-core/internal/db"
	"github.com/askdb-io/askdb-core/internal/llm"
	"github.com/askdb-io/askdb-core/internal/natsserver"
	"github.com/askdb-io/askdb-core/internal/nlp"
	"github.com/askdb-io/askdb-core/internal/server"
	"github.com/askdb-io/askdb-core/internal/stt"
	"github.com/askdb-io/askdb-core/internal/summary"
	"github.com/askdb-io/askdb-core/internal/tts"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	bus         *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	defer embedded.Shutdown()

	var busClient *bus.Client
	if r.cfg.Relay.Enabled {
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer busClient.Close()
		r.bus = busClient
	}

	executor, err := db.NewPgxExecutor(ctx, r.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer executor.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	err = executor.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	auditStore, err := audit.Open(ctx, r.cfg.Audit, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close()

	var generator llm.Generator
	if r.cfg.LLM.Enabled {
		generator, err = llm.FromConfig(r.cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to configure llm: %w", err)
		}
	}

	strategy, err := nlp.ParseStrategy(r.cfg.Matcher.Strategy)
	if err != nil {
		return err
	}

	var embedder nlp.Embedder
	if strategy == nlp.StrategyEmbedding {
		embedder, err = nlp.EmbedderFromConfig(r.cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to configure embedder: %w", err)
		}
	}

	transcriber, err := stt.FromConfig(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to configure stt: %w", err)
	}
	synthesizer, err := tts.FromConfig(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to configure tts: %w", err)
	}

	cat := catalog.Builtin()
	deliverer := &server.Deliverer{}
	controller := assistant.NewController(assistant.ControllerConfig{
		Extractor:   nlp.NewExtractor(generator, r.logger),
		Engine:      nlp.NewEngine(cat, embedder, r.cfg.Embedding.MaxInflight, generator, r.logger),
		Executor:    executor,
		Summarizer:  summary.New(generator, r.logger),
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Auditor:     auditStore,
		Deliverer:   deliverer,
		Strategy:    strategy,
		Threshold:   r.cfg.Matcher.Threshold,
	}, r.logger)

	wsServer := server.NewWSServer(controller, r.logger)
	deliverer.WS = wsServer

	if busClient != nil {
		relay := server.NewRelay(busClient, controller, r.logger)
		deliverer.Relay = relay
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("failed to start relay: %w", err)
		}
		defer relay.Stop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	wsServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("strategy", string(strategy)),
		slog.Bool("relay", busClient != nil))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

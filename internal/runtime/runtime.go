// Package runtime wires configuration into a running quoteplay instance:
// telemetry, playback, inference, history, bus and the ops HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/quoteplay/internal/archive"
	"github.com/loqalabs/quoteplay/internal/bus"
	"github.com/loqalabs/quoteplay/internal/config"
	"github.com/loqalabs/quoteplay/internal/fetch"
	"github.com/loqalabs/quoteplay/internal/history"
	"github.com/loqalabs/quoteplay/internal/inference"
	"github.com/loqalabs/quoteplay/internal/natsserver"
	"github.com/loqalabs/quoteplay/internal/playback"
	"github.com/loqalabs/quoteplay/internal/speech"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	// TraceOutput receives stdout-exporter spans; defaults to stderr.
	TraceOutput io.Writer

	speech  *speech.Service
	history *history.Store
	bus     *bus.Client
	nats    *natsserver.EmbeddedServer
	caps    playback.Capabilities

	httpServer     *http.Server
	listener       net.Listener
	metricsHandler http.Handler
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:         cfg,
		logger:      logger,
		TraceOutput: os.Stderr,
	}
}

// Open builds every component. Close must be called even when Open fails.
func (r *Runtime) Open(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.TraceOutput, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	if usesSpeaker(r.cfg.Playback) {
		r.caps = playback.Probe(r.cfg.Playback.SampleRate, r.cfg.Playback.BufferMS, r.logger)
	}
	player, err := playback.Build(r.cfg.Playback, r.caps, r.logger)
	if err != nil {
		return fmt.Errorf("build player: %w", err)
	}
	r.logger.Debug("playback backends", slog.Any("order", player.Backends()))

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	r.history = store

	var publisher speech.Publisher
	if r.cfg.Bus.Enabled {
		if publisher, err = r.openBus(ctx); err != nil {
			return err
		}
	}

	httpClient := inference.NewHTTPClient(r.cfg.Inference.RequestTimeout)
	client := inference.NewClient(r.cfg.Inference.BaseURL,
		inference.WithAPIKey(r.cfg.Inference.APIKey),
		inference.WithHTTPClient(httpClient))

	var archiver speech.Archiver
	if conv, err := archive.NewCommandConverter(r.cfg.Archive.ConvertCommand); err != nil {
		r.logger.Warn("archive disabled", slog.String("error", err.Error()))
	} else {
		archiver = archive.New(r.cfg.Archive, conv, r.logger)
	}

	svc, err := speech.NewService(r.cfg.Inference, speech.Deps{
		Jobs:      client,
		Fetcher:   fetch.New(httpClient),
		Player:    player,
		Recorder:  store,
		Publisher: publisher,
		Archiver:  archiver,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("create speech service: %w", err)
	}
	r.speech = svc
	r.ready.Store(true)
	return nil
}

func (r *Runtime) openBus(ctx context.Context) (speech.Publisher, error) {
	cfg := r.cfg.Bus
	embedded, err := natsserver.Start(cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.nats = embedded
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, cfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return nil, err
	}
	r.bus = client
	return client, nil
}

func usesSpeaker(cfg config.PlaybackConfig) bool {
	return slices.Contains(cfg.Backends, "mixer") || slices.Contains(cfg.Backends, "buffer")
}

func (r *Runtime) Speech() *speech.Service { return r.speech }


// Capabilities reports the audio probe result.
func (r *Runtime) Capabilities() playback.Capabilities { return r.caps }

// StartOps serves /healthz, /readyz and /metrics when http.enabled is set.
func (r *Runtime) StartOps() error {
	if !r.cfg.HTTP.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle("/metrics", r.metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.listener = ln
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("ops server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// OpsAddr returns the bound ops address, or "" when not serving.
func (r *Runtime) OpsAddr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Close stops the ops server and releases every component.
func (r *Runtime) Close() {
	r.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		r.wg.Wait()
	}
	r.bus.Close()
	r.nats.Shutdown()
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.logger.Warn("history close error", slog.String("error", err.Error()))
		}
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) healthy() bool {
	if r.cfg.Bus.Enabled && !r.bus.Healthy() {
		return false
	}
	return r.ready.Load()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"wasmregistry/internal/platform/config"
	"wasmregistry/internal/platform/httpserver"
	"wasmregistry/internal/platform/logger"
	platformmetrics "wasmregistry/internal/platform/metrics"
	"wasmregistry/internal/platform/tracing"
	"wasmregistry/internal/registry"
	"wasmregistry/internal/registry/handler"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/host/stored"
	"wasmregistry/internal/registry/metrics"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
	"wasmregistry/pkg/platform/httputil"
	"wasmregistry/pkg/signer"
)

// main wires the storage backend, event sinks and HTTP surface, then blocks
// until a signal arrives.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	admin, err := models.ParseAddress(cfg.Admin)
	if err != nil {
		return fmt.Errorf("REGISTRY_ADMIN: %w", err)
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownWithTimeout(log, "tracing", tp.Shutdown)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	sinks, err := buildSinks(ctx, cfg, deps, m, log)
	if err != nil {
		return err
	}
	defer sinks.close()

	self := host.DeriveAddress(admin, models.HashOf([]byte(name.Registry)))
	opts := append([]registry.Option{
		registry.WithLogger(log),
		registry.WithMetrics(m),
		registry.WithTracer(tp.Tracer()),
		registry.WithHashCache(cfg.HashCacheTTL),
	}, sinks.options...)
	svc, err := registry.New(deps.backend, host.NewLocal(host.WithState(stored.New())), self, deps.seq, opts...)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := svc.Init(ctx, admin); err != nil {
		return fmt.Errorf("init registry: %w", err)
	}

	httpMetrics := platformmetrics.NewHTTP(reg)
	r := chi.NewRouter()
	r.Use(httpMetrics.Middleware)
	r.Get("/healthz", healthz(deps))
	r.Handle("/metrics", platformmetrics.Handler(reg))
	handler.New(svc, signer.NewVerifier(cfg.SignerAudience), log,
		handler.WithChannel(svc.Unverified().Channel(), svc.Unverified()),
	).Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting wasm registry",
			"addr", cfg.Addr,
			"backend", cfg.Backend,
			"self", self.String(),
			"tracing", tp.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sinks.relay != nil {
		g.Go(func() error { return sinks.relay.Run(gctx) })
	}
	if sinks.listen != nil {
		g.Go(func() error { return sinks.listen(gctx) })
	}
	if deps.sweep != nil {
		g.Go(func() error { return sweepLoop(gctx, cfg.LedgerClose, deps.sweep, log) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func healthz(deps *backendDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.health != nil {
			if err := deps.health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// sweepLoop purges expired entries once per ledger close.
func sweepLoop(ctx context.Context, every time.Duration, sweep func(context.Context) (int64, error), log *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				log.WarnContext(ctx, "sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "swept expired entries", "count", n)
			}
		}
	}
}

func shutdownWithTimeout(log *slog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", "component", what, "error", err)
	}
}

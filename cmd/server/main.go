package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/config"
	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
	"github.com/twincitiespublictelevision/pbs-partner/internal/hertzapi"
	"github.com/twincitiespublictelevision/pbs-partner/internal/httpapi"
	"github.com/twincitiespublictelevision/pbs-partner/internal/lifecycle"
	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/plugins/analytics"
	"github.com/twincitiespublictelevision/pbs-partner/internal/plugins/resume"
	"github.com/twincitiespublictelevision/pbs-partner/internal/sessions"
	"github.com/twincitiespublictelevision/pbs-partner/internal/telemetry"
	"github.com/twincitiespublictelevision/pbs-partner/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serve runs the bridge until ctx ends.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	tp, err := telemetry.New(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Interval: cfg.Telemetry.Interval,
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := openStore(ctx, cfg.Resume)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if err := registerPlugins(cfg, store, tp, log); err != nil {
		return err
	}

	manager := sessions.NewManager(
		sessions.WithLogger(log),
		sessions.WithQueryTimeout(cfg.Player.QueryTimeout),
		sessions.WithPlayerOptions(playerOptions(cfg.Player)...),
	)
	defer manager.Close()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("engine", cfg.Server.Engine).
		Strs("plugins", player.Plugins()).
		Msg("starting server")

	if cfg.Server.Engine == config.EngineEcho {
		return serveEcho(ctx, cfg.Server.Addr, manager, log)
	}
	return serveHertz(ctx, cfg.Server.Addr, manager, log)
}

func playerOptions(cfg config.Player) []player.Option {
	return []player.Option{
		player.WithControlOptions(control.WithTransportOptions(
			transport.WithOrigin(cfg.Origin),
			transport.WithHistorySize(cfg.HistorySize),
		)),
		player.WithLifecycleOptions(
			lifecycle.WithInterval(cfg.SampleInterval),
			lifecycle.WithQueryTimeout(cfg.QueryTimeout),
		),
	}
}

// openStore returns nil when resuming is switched off.
func openStore(ctx context.Context, cfg config.Resume) (resume.Store, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		store, err := resume.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("opening resume store: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		store := resume.NewRedisStore(cfg.RedisAddr, cfg.RedisTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return store, nil
	case config.BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown resume backend %q", cfg.Backend)
	}
}

func registerPlugins(cfg config.Config, store resume.Store, tp *telemetry.Provider, log zerolog.Logger) error {
	if cfg.Analytics.Enabled {
		meter, err := analytics.MeterTracker(tp.Meter())
		if err != nil {
			return err
		}
		player.AddPlugin(analytics.Name, analytics.Factory(
			analytics.Fanout(analytics.LogTracker(log), meter),
			analytics.Tracking{
				Category: cfg.Analytics.Category,
				Label:    cfg.Analytics.Label,
				Metric:   cfg.Analytics.Metric,
			},
		))
	}
	if store != nil {
		player.AddPlugin(resume.Name, resume.Factory(store, log))
	}
	return nil
}

func serveHertz(ctx context.Context, addr string, manager *sessions.Manager, log zerolog.Logger) error {
	h := server.Default(server.WithHostPorts(addr))
	hertzapi.NewRouter(h, manager, log)

	errc := make(chan error, 1)
	go func() {
		errc <- h.Run()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Shutdown(shutdownCtx)
}

func serveEcho(ctx context.Context, addr string, manager *sessions.Manager, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewServer(manager, log).Router(),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/config"
	redisstore "trivia-session-service/internal/infra/redis"
	"trivia-session-service/internal/telemetry"
	transport "trivia-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "trivia-session-service"
	}
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry.Endpoint, cfg.Telemetry.SampleRatio)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "err", err)
		}
	}()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := transport.NewHub()
	service := app.NewGameService(st.registry, st.quizzes, st.catalog, app.Options{
		Snapshots: st.snaps,
		Reports:   st.reports,
		Presenter: hub,
		Logger:    logger,
		Rules:     rulesFromConfig(cfg),
	})

	persister := app.NewPersister(service, st.snaps, config.TTLDuration(cfg.Game.SnapshotInterval, 5*time.Second), logger)
	if report, restoreErr := persister.RestoreAll(ctx); restoreErr != nil {
		logger.Error("restore failed, starting empty", "err", restoreErr)
	} else {
		logger.Info("restore finished",
			"restored", len(report.Restored),
			"skipped", len(report.Skipped),
			"failed", len(report.Failed))
	}

	supervisor := app.NewSupervisor(service, config.TTLDuration(cfg.Game.SweepInterval, time.Second), logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		persister.Run(ctx)
	}()
	if st.markers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refreshMarkers(ctx, st.markers, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)/2, logger)
		}()
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting trivia service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err = <-serveErr:
		logger.Error("server failed", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	// Background loops exit on ctx; the persister writes its final snapshot before returning.
	wg.Wait()
	return err
}

// refreshMarkers keeps the Redis session markers alive while this instance owns the sessions.
func refreshMarkers(ctx context.Context, store *redisstore.SessionStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Refresh(ctx); err != nil {
				logger.Warn("session marker refresh failed", "err", err)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/focusclass/focusd/internal/adapters/http/api"
	"github.com/focusclass/focusd/internal/adapters/hub"
	"github.com/focusclass/focusd/internal/adapters/storage"
	"github.com/focusclass/focusd/internal/adapters/stream"
	service "github.com/focusclass/focusd/internal/app"
	"github.com/focusclass/focusd/internal/config"
	"github.com/focusclass/focusd/internal/domain/focus"
	"github.com/focusclass/focusd/internal/domain/model"
	"github.com/focusclass/focusd/internal/domain/throttle"
	"github.com/focusclass/focusd/pkg/logger"
	"github.com/focusclass/focusd/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Persistence: sqlite behind the async fire-and-forget writer.
	store, err := storage.NewSQLiteStore(ctx, storage.WithPath(cfg.DBPath))
	if err != nil {
		loggerInstance.Error(ctx, "failed to open database", logger.String("path", cfg.DBPath), logger.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	writer := storage.NewAsyncWriter(store,
		storage.WithQueueCapacity(cfg.PersistQueueSize),
		storage.WithWorkerCount(cfg.PersistWorkers),
	)
	writer.Start(ctx)
	defer writer.Stop()

	// Connection hub for participant channels.
	connHub := hub.New(
		hub.WithAuthWait(time.Duration(cfg.AuthWaitSecs)*time.Second),
		hub.WithHeartbeatInterval(time.Duration(cfg.HeartbeatIntervalSecs)*time.Second),
		hub.WithLivenessTimeout(time.Duration(cfg.LivenessTimeoutSecs)*time.Second),
		hub.WithMaxParticipants(cfg.MaxParticipants),
	)

	// Screen pipeline. The synthetic source keeps the authority useful on
	// headless hosts; a real grabber satisfies the same interface.
	streamer := stream.New(
		stream.NewSyntheticSource(),
		connHub,
		stream.WithQuality(model.ParseQuality(cfg.StreamQuality)),
		stream.WithMonitor(cfg.StreamMonitor),
		stream.WithMaxOutstanding(cfg.StreamMaxOutstanding),
	)

	// Session manager wiring.
	svc := service.New(
		connHub,
		streamer,
		focus.New(focus.WithAckTimeout(time.Duration(cfg.FocusAckTimeoutSecs)*time.Second)),
		throttle.New(
			throttle.WithInterval(time.Duration(cfg.ThrottleIntervalSecs)*time.Second),
			throttle.WithRetention(time.Duration(cfg.ThrottleRetentionSecs)*time.Second),
		),
		writer,
		service.WithLogger(loggerInstance),
		service.WithPasswordLength(cfg.PasswordLength),
	)
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux, connHub.HandleSession)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

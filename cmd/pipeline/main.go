package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/polysignal/polymarket-data/internal/config"
	"github.com/polysignal/polymarket-data/internal/database"
	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/monitor"
	"github.com/polysignal/polymarket-data/internal/poller"
	"github.com/polysignal/polymarket-data/internal/signals"
	"github.com/polysignal/polymarket-data/internal/store"
	"github.com/polysignal/polymarket-data/internal/stream"
	"github.com/polysignal/polymarket-data/internal/version"
)

// drainTimeout is how long workers get to finish on shutdown.
const drainTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "configs/pipeline.yaml", "path to config file")
	flag.Parse()

	// Local development convenience; absent .env is fine.
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	logger.Info("starting pipeline",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Config file wins over the environment for log level.
	if cfg.LogLevel != "" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))
		slog.SetDefault(logger)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gamma_url", cfg.API.GammaURL,
		"poller_enabled", cfg.Poller.Enabled,
		"streamer_enabled", cfg.Stream.Enabled,
		"tpsl_enabled", cfg.Monitor.TPSLEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool, logger)
	if err := st.Migrate(ctx); err != nil {
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	rest := gamma.NewClient(
		cfg.API.GammaURL,
		cfg.API.ClobURL,
		gamma.WithLogger(logger),
		gamma.WithTimeout(cfg.API.Timeout),
		gamma.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	bus := signals.NewBus(256, logger)
	detector := monitor.NewDetector(st, bus, cfg.Monitor.RedeemTTL, logger)

	var streamer *stream.Streamer
	if cfg.Stream.Enabled {
		streamCfg := stream.Config{
			URL:               cfg.API.WSURL,
			APIKey:            cfg.API.APIKey,
			Secret:            cfg.API.Secret,
			Passphrase:        cfg.API.Passphrase,
			SyncInterval:      cfg.Stream.SyncInterval,
			ReconnectBaseWait: cfg.Stream.ReconnectBaseWait,
			ReconnectMaxWait:  cfg.Stream.ReconnectMaxWait,
			PingInterval:      cfg.Stream.PingInterval,
			PingTimeout:       cfg.Stream.PingTimeout,
			WriteTimeout:      cfg.Stream.WriteTimeout,
			BufferSize:        cfg.Stream.BufferSize,
			MaxFrameSize:      cfg.Stream.MaxFrameBytes,
			TokenLimit:        cfg.Stream.TokenLimit,
		}
		router := stream.NewRouter(st, logger)
		streamer = stream.NewStreamer(streamCfg, st, router, logger)
		if err := streamer.Start(ctx); err != nil {
			logger.Error("failed to start streamer", "error", err)
			os.Exit(1)
		}
	}

	var poll *poller.Poller
	if cfg.Poller.Enabled {
		pollCfg := poller.DefaultConfig()
		pollCfg.Interval = cfg.Poller.Interval
		pollCfg.EventsPages = cfg.Poller.EventsPages
		pollCfg.PageSize = cfg.Poller.PageSize
		pollCfg.UpsertChunk = cfg.Poller.UpsertChunk
		pollCfg.UrgentWindow = cfg.Poller.UrgentWindow
		pollCfg.HighCount = cfg.Poller.HighCount
		pollCfg.MediumCount = cfg.Poller.MediumCount
		pollCfg.SmallCount = cfg.Poller.SmallCount
		pollCfg.SmallEvery = cfg.Poller.SmallEvery
		pollCfg.ProposedLimit = cfg.Poller.ProposedLimit
		pollCfg.HealthEvery = cfg.Poller.HealthEvery

		poll = poller.New(pollCfg, rest, st, bus, logger)
		if err := poll.Start(ctx); err != nil {
			logger.Error("failed to start poller", "error", err)
			os.Exit(1)
		}
	}

	var tpsl *monitor.TPSLMonitor
	if cfg.Monitor.TPSLEnabled {
		tpsl = monitor.NewTPSLMonitor(cfg.Monitor.TPSLInterval, st, rest, bus, detector, logger)
		if err := tpsl.Start(ctx); err != nil {
			logger.Error("failed to start tpsl monitor", "error", err)
			os.Exit(1)
		}
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthHandler(st, poll, streamer, logger),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("pipeline running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()

	if poll != nil {
		poll.Stop(drainCtx)
	}
	if tpsl != nil {
		tpsl.Stop(drainCtx)
	}
	if streamer != nil {
		streamer.Stop(drainCtx)
	}
	healthServer.Shutdown(drainCtx)

	logger.Info("pipeline stopped")
}

// healthHandler reports database reachability, poll freshness, and stream
// state.
func healthHandler(st *store.Store, poll *poller.Poller, streamer *stream.Streamer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := st.Pool().Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		pollerInfo := map[string]any{}
		if lastSync, err := st.LastSync(ctx); err == nil && lastSync != nil {
			age := time.Since(*lastSync)
			pollerInfo["last_sync"] = lastSync.UTC().Format(time.RFC3339)
			pollerInfo["last_sync_age"] = age.Round(time.Second).String()
			if age > 5*time.Minute {
				health.Status = "degraded"
			}
		} else {
			pollerInfo["last_sync"] = "no completed cycle"
		}
		if poll != nil {
			pollerInfo["budget_aborts"] = poll.BudgetAborts()
		}
		health.Components["poller"] = pollerInfo

		if streamer != nil {
			health.Components["streamer"] = map[string]any{
				"state":            streamer.State(),
				"subscribed":       streamer.Subscribed(),
				"connect_failures": streamer.ConnectFailures(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": version.Version,
			"commit":  version.Commit,
			"built":   version.BuildTime,
		})
	})

	return mux
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

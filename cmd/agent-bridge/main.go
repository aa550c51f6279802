package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scarmonit-creator/LLM-sub005/internal/bridge"
	"github.com/scarmonit-creator/LLM-sub005/internal/config"
	"github.com/scarmonit-creator/LLM-sub005/internal/metrics"
	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
	"github.com/scarmonit-creator/LLM-sub005/internal/protocol"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "bridge.config.json", "Path to config file")
	wsAddr := flag.String("ws-addr", "", "WebSocket listen address (overrides config)")
	httpAddr := flag.String("http-addr", "", "HTTP control plane listen address (overrides config)")
	flag.Parse()

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *wsAddr != "" {
		cfg.Network.WebSocketAddr = *wsAddr
	}
	if *httpAddr != "" {
		cfg.Network.HTTPAddr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Info().Str("source", source).Str("env", cfg.Env).Msg("configuration loaded")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bridge failed")
	}
	logger.Info().Msg("shutdown complete")
}

func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}

	cfg := config.LoadDefault()
	source := "defaults"
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", err
		}
		source = path
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, source, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat() == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event observers: structured log, Prometheus, optional Redis fan-out
	dispatcher := notify.NewDispatcher(1024, notify.NewLogObserver(logger), metrics.Observer{})
	checks := make(map[string]protocol.Pinger)
	if cfg.Events.RedisURL != "" {
		pub, err := notify.NewRedisPublisher(ctx, cfg.Events.RedisURL, cfg.Events.RedisChannel, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer pub.Close()
		dispatcher.Subscribe(pub)
		checks["redis"] = pub
		logger.Info().Str("channel", cfg.Events.RedisChannel).Msg("publishing events to redis")
	}
	go dispatcher.Run()

	b := bridge.New(bridge.Options{
		MaxClients:          cfg.Bridge.MaxClients,
		HistorySize:         cfg.Bridge.HistorySize,
		QueueBatchSize:      cfg.Bridge.QueueBatchSize,
		MaxQueuedPerClient:  cfg.Bridge.MaxQueuedPerClient,
		MaxQueuedTotal:      cfg.Bridge.MaxQueuedTotal,
		RegistrationHistory: cfg.Bridge.RegistrationHistory,
		HeartbeatInterval:   cfg.HeartbeatInterval(),
		CleanupInterval:     cfg.CleanupInterval(),
		StaleThreshold:      cfg.StaleThreshold(),
		Logger:              logger,
		Events:              dispatcher,
	})

	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- b.Run(bridgeCtx)
	}()

	wsServer := &http.Server{
		Addr: cfg.Network.WebSocketAddr,
		Handler: protocol.NewWSHandler(bridgeCtx, b, protocol.WSOptions{
			AllowedOrigins:  cfg.Network.AllowedOrigins,
			MaxMessageBytes: cfg.Network.MaxMessageBytes,
			Logger:          logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := &http.Server{
		Addr: cfg.Network.HTTPAddr,
		Handler: protocol.NewServer(b, protocol.ServerOptions{
			Logger:          logger,
			AllowedOrigins:  cfg.Network.AllowedOrigins,
			MaxMessageBytes: cfg.Network.MaxMessageBytes,
			WebSocketAddr:   cfg.Network.WebSocketAddr,
			HTTPAddr:        cfg.Network.HTTPAddr,
			Checks:          checks,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"websocket": wsServer, "http": httpServer} {
		go func(name string, srv *http.Server) {
			logger.Info().Str("transport", name).Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- fmt.Errorf("%s listener: %w", name, err)
			}
		}(name, srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-serverErrors:
	case runErr = <-bridgeDone:
		if runErr == nil {
			runErr = errors.New("bridge stopped unexpectedly")
		}
	}

	// Stop accepting connections, then stop the bridge so it closes every
	// client transport, then drain the event dispatcher.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("websocket shutdown")
	}

	cancelBridge()
	<-b.Done()
	dispatcher.Close()

	if dropped := dispatcher.Dropped(); dropped > 0 {
		logger.Warn().Int64("dropped_events", dropped).Msg("event buffer overflowed during run")
	}
	return runErr
}

package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/services"
	httphandlers "lumecast/internal/handlers/http"
	"lumecast/internal/infrastructure/backend"
	"lumecast/internal/infrastructure/identity"
	"lumecast/internal/infrastructure/middleware"
	"lumecast/internal/infrastructure/monitoring"
	signalrelay "lumecast/internal/infrastructure/signal"
	webrtcinfra "lumecast/internal/infrastructure/webrtc"
	"lumecast/internal/media"
	"lumecast/pkg/config"
	"lumecast/pkg/logger"
	"lumecast/pkg/retry"
	"lumecast/pkg/tracing"
	"lumecast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "lumecast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	metrics := monitoring.NewCollector()

	// Backend and identity
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.AccessToken, cfg.Backend.Timeout, log)
	identityStore := identity.NewStore(cfg.Backend.AccessToken, log)

	// Media pipeline
	device := media.NewTestPatternDevice(log)
	mediaManager := media.NewManager(device, log)
	thumbnailCapturer := media.NewCapturer(backendClient, cfg.Thumbnail.SettleDelay, retry.Config{
		MaxAttempts:  cfg.Thumbnail.PollAttempts,
		InitialDelay: cfg.Thumbnail.PollInterval,
		MaxDelay:     cfg.Thumbnail.PollInterval,
		Multiplier:   1,
	}, log)

	// WebRTC transports, seeded with the configured STUN servers
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		iceServers = append(iceServers, server)
	}
	factory := webrtcinfra.NewPionFactory(iceServers, log)
	registry := webrtcinfra.NewRegistry(factory, log)

	// Signaling relay
	relay := signalrelay.NewRelay(
		cfg.Signal.URL,
		utils.GenerateClientID(),
		cfg.Signal.PingInterval,
		cfg.Signal.WriteTimeout,
		metrics,
		log,
	)

	orchestrator := services.NewOrchestrator(
		backendClient,
		identityStore,
		relay,
		registry,
		factory,
		mediaManager,
		thumbnailCapturer,
		metrics,
		"public",
		log,
	)
	relay.SetHandler(orchestrator)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := relay.Connect(connectCtx); err != nil {
		log.Warnw("signaling relay unavailable at startup", "url", cfg.Signal.URL, "error", err)
	}
	connectCancel()

	// Control API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	controlHandler := httphandlers.NewControlHandler(orchestrator, domain.QualityKey(cfg.Media.DefaultQuality), log)
	controlHandler.RegisterRoutes(router)

	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
			"uptime": time.Since(startTime).String(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Lumecast broadcaster control API on %s", cfg.Control.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Control API server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down broadcaster...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()

	if err := orchestrator.Close(shutdownCtx); err != nil {
		log.Errorw("Error stopping session during shutdown", "error", err)
	}
	relay.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("Broadcaster stopped")
}

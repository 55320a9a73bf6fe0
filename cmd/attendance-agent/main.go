package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/cache"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/engine"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/events"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/handler"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/location"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/remote"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/httputil"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/i18n"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/messaging"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("attendance-agent")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("attendance-agent", cfg.Server.Environment)
	log.Info().Msg("starting Attendance Agent")

	// Initialize metrics
	m := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Connect to RabbitMQ. The broker is optional: attendance keeps working
	// without event publishing.
	var rmq *messaging.RabbitMQ
	var publisher *events.Publisher
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ unavailable, continuing without event publishing")
		} else {
			defer rmq.Close()
			publisher, err = events.NewPublisher(rmq, log)
			if err != nil {
				log.Error().Err(err).Msg("failed to create event publisher, continuing without it")
				publisher = nil
			}
		}
	}
	var notifier cache.FailureNotifier
	var sink engine.EventSink
	if publisher != nil {
		notifier = publisher
		sink = publisher
	}

	// Initialize the remote attendance API client
	client := remote.NewClient(&cfg.Remote, log, m)

	// Initialize geolocation
	var geo location.Geolocator = location.NoDevice{}
	if cfg.Agent.LocationURL != "" {
		geo = location.NewHTTPGeolocator(cfg.Agent.LocationURL)
	}
	resolver := location.NewResolver(geo, cfg.Agent.LocationTimeout, log, m)

	// Initialize cache manager and lifecycle engine
	cacheMgr := cache.NewManager(client, &cfg.Agent, log, m, notifier)
	lifecycle := engine.New(client, cacheMgr, resolver, sink, &cfg.Agent, log, m)

	// Start the background refresher
	refresher := cache.NewRefresher(cacheMgr, cfg.Agent.TodayPollInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go refresher.Run(ctx)
	refresher.Trigger(cache.TriggerReconnect) // warm every view on startup

	// Initialize handler
	attendanceHandler := handler.NewAttendanceHandler(lifecycle, cacheMgr, refresher, &cfg.Agent, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": "attendance-agent",
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api/v1/attendance", attendanceHandler.Routes)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the background refresher
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

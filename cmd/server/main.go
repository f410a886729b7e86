package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"

	"traffic-platform/internal/config"
	"traffic-platform/internal/external"
	"traffic-platform/internal/handlers"
	"traffic-platform/internal/repository"
	"traffic-platform/internal/services"
	"traffic-platform/internal/stations"
	"traffic-platform/internal/storage"
	"traffic-platform/internal/watcher"
	"traffic-platform/pkg/database"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("traffic-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting traffic platform API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"data_source": cfg.Data.Source,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("traffic_platform")

	// Series source and station directory
	var (
		source    services.SeriesSource
		directory *stations.Directory
	)
	switch cfg.Data.Source {
	case config.SourcePostgres:
		db, err := database.NewPostgresDB(cfg.Database.PostgresConfig(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		repo := repository.NewTrafficRepository(db, logger, metricsCollector)
		list, err := repo.ListStations(ctx)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load stations", logging.Fields{}, err)
		}
		source, directory = repo, stations.NewDirectory(list)

	default:
		directory, err = stations.Load(cfg.Data.StationsPath)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load stations", logging.Fields{
				"stations_path": cfg.Data.StationsPath,
			}, err)
		}
		source = storage.NewFileSource(cfg.Data.CombinedPath)
	}

	// Initialize services
	predictions := services.NewPredictionService(source, directory, services.PredictionOptions{
		HistoryDays: cfg.Forecast.HistoryDays,
		Interpolate: cfg.Forecast.Interpolate,
	}, logger, metricsCollector)

	// a failed startup load leaves the API answering 503 until the next reload
	if err := predictions.Reload(ctx, "startup"); err != nil {
		logger.Warn(ctx, "[STARTUP_WARNING] Serving without a combined series", logging.Fields{
			"error": err.Error(),
		})
	}

	retry := external.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Weather.MaxRetries
	baseClient := external.NewBaseClient(&http.Client{Timeout: cfg.Weather.Timeout}, "brightsky", retry, cfg.Weather.UserAgent)
	weatherProvider := external.NewCachedProvider(
		external.NewBrightSkyClient(baseClient, cfg.Weather.BaseURL),
		cfg.Weather.CacheSize,
		cfg.Weather.CacheTTL,
		metricsCollector,
	)
	weatherService := services.NewWeatherService(weatherProvider, directory, logger, metricsCollector)
	evaluationService := services.NewEvaluationService(predictions, logger, metricsCollector)

	// Scheduled jobs
	scheduler := cron.New()
	if err := scheduler.AddFunc(cfg.Data.ReloadCron, func() {
		if err := predictions.Reload(ctx, "cron"); err != nil {
			return
		}
		if _, err := evaluationService.EvaluateAll(ctx, cfg.Forecast.Horizon, 28, 7); err != nil {
			logger.Error(ctx, "[CRON_EVAL_ERROR] Scheduled evaluation failed", logging.Fields{}, err)
		}
	}); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid reload schedule", logging.Fields{"spec": cfg.Data.ReloadCron}, err)
	}
	if err := scheduler.AddFunc(cfg.Weather.PurgeCron, func() {
		logger.Debug(ctx, "[CRON_WEATHER_PURGE] Purging weather cache", logging.Fields{
			"entries": weatherProvider.Len(),
		})
		weatherProvider.Purge()
	}); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid weather purge schedule", logging.Fields{"spec": cfg.Weather.PurgeCron}, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Reload when the combined series file is replaced
	if cfg.Data.Watch && cfg.Data.Source == config.SourceFile {
		monitor, err := watcher.NewFileMonitor(cfg.Data.CombinedPath, 2*time.Second, logger)
		if err != nil {
			logger.Warn(ctx, "[STARTUP_WARNING] File watching disabled", logging.Fields{
				"error": err.Error(),
			})
		} else {
			defer monitor.Close()
			go func() {
				if err := monitor.Watch(ctx, func(ctx context.Context, path string) {
					predictions.Reload(ctx, "watch")
				}); err != nil {
					logger.Error(ctx, "[WATCH_STOPPED] File watcher stopped", logging.Fields{}, err)
				}
			}()
		}
	}

	// Initialize handlers
	defaultDate, err := parseDefaultDate(cfg.Dashboard.DefaultDate)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid dashboard default date", logging.Fields{
			"default_date": cfg.Dashboard.DefaultDate,
		}, err)
	}
	trafficHandler := handlers.NewTrafficHandler(predictions, weatherService, handlers.Options{
		DefaultDate: defaultDate,
		Horizon:     cfg.Forecast.Horizon,
	}, logger, metricsCollector)

	router := handlers.NewRouter(trafficHandler, logger, metricsCollector)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// parseDefaultDate reads DASHBOARD_DEFAULT_DATE; empty means no fixed date
func parseDefaultDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

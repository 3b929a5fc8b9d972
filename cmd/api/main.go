// Package main is the entry point for the cropyield API server.
//
// It loads configuration, wires the prediction pipeline (reference tables,
// weather and yield model clients, the prediction store) into the core
// chassis and starts serving.
//
// Outside AWS Lambda it runs a standard HTTP server on the configured port.
// Inside Lambda it serves API Gateway HTTP API (v2) events through the same
// chi router.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cropyield/internal/api/handlers"
	"cropyield/internal/auth"
	"cropyield/internal/cache"
	"cropyield/internal/config"
	"cropyield/internal/core"
	"cropyield/internal/db"
	"cropyield/internal/external"
	"cropyield/internal/prediction"
	"cropyield/internal/reference"
	"cropyield/internal/telemetry"
	"cropyield/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("cropyield API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
	)

	ctx := context.Background()

	clients, err := newAWSClients(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := buildServer(ctx, cfg, logger, clients)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// awsClients holds the optional AWS service clients. A nil field disables
// the corresponding feature.
type awsClients struct {
	CloudWatch telemetry.CloudWatchClient
	SQS        telemetry.SQSSender
}

// newAWSClients builds CloudWatch and SQS clients when metrics or prediction
// events are enabled. No AWS configuration is loaded otherwise.
func newAWSClients(ctx context.Context, cfg *config.Config) (awsClients, error) {
	var clients awsClients
	wantMetrics := cfg.Observability.EnableMetrics
	wantEvents := cfg.AWS.PredictionEventsQueueURL != ""
	if !wantMetrics && !wantEvents {
		return clients, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return clients, fmt.Errorf("loading AWS config: %w", err)
	}

	endpoint := cfg.AWS.EndpointURL
	if wantMetrics {
		clients.CloudWatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	if wantEvents {
		clients.SQS = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	return clients, nil
}

// buildServer wires every dependency into a mounted core.Server.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, clients awsClients) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	tables, err := reference.Default()
	if err != nil {
		return nil, fmt.Errorf("loading reference tables: %w", err)
	}

	store, err := openStore(ctx, cfg, srv)
	if err != nil {
		return nil, err
	}

	weather := newWeatherProvider(ctx, cfg, srv)

	modelClient := external.NewYieldModelClient(
		&http.Client{Timeout: cfg.YieldModel.Timeout},
		external.YieldModelConfig{URL: cfg.YieldModel.URL, Breaker: breakerSettings(cfg), Logger: logger},
	)
	if modelClient.Endpoint() == "" {
		logger.Warn("ML_MODEL_API_URL not set; every prediction will use the fallback estimator")
	}

	var metrics interface {
		core.MetricsCollector
		prediction.MetricsRecorder
	} = telemetry.NoopMetrics{}
	if clients.CloudWatch != nil {
		metrics = telemetry.NewCloudWatchMetrics(clients.CloudWatch, cfg.Observability.MetricNamespace, logger)
	}
	srv.Metrics = metrics

	var events prediction.EventPublisher = telemetry.NoopPublisher{}
	if clients.SQS != nil {
		events = telemetry.NewPredictionPublisher(clients.SQS, cfg.AWS.PredictionEventsQueueURL, logger)
	}

	clock := types.RealClock{}
	srv.Authenticator = auth.NewJWTAuthenticator(cfg.Auth.JWTSecret.Unmask(), cfg.Auth.JWTIssuer, clock)

	soil := prediction.NewSoilResolver(tables, logger)
	svc := prediction.NewService(prediction.ServiceConfig{
		Weather:     prediction.NewWeatherResolver(weather, clock, logger),
		Soil:        soil,
		Normalizer:  prediction.NewNormalizer(tables),
		Model:       prediction.NewModelInvoker(modelClient, logger),
		Store:       store,
		Metrics:     metrics,
		Events:      events,
		Clock:       clock,
		Logger:      logger,
		DebugErrors: cfg.DebugErrors,
	})

	predictionHandler := handlers.NewPredictionHandler(svc, logger)
	soilHandler := handlers.NewSoilHandler(soil, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		predictionHandler.RegisterRoutes,
		soilHandler.RegisterRoutes,
	)
	srv.PublicPaths = append(srv.PublicPaths, "/v1"+handlers.SoilDataPath)

	srv.MountRoutes()
	return srv, nil
}

// openStore opens the prediction store selected by DB_DRIVER and registers
// its health probe and closer on srv.
func openStore(ctx context.Context, cfg *config.Config, srv *core.Server) (prediction.PredictionStore, error) {
	if cfg.UsesSQLite() {
		gdb, err := db.OpenSQLite(cfg.Database.SQLitePath, cfg.Database.AutoMigrate)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		repo := db.NewGormPredictionRepository(gdb)
		srv.HealthProbes = append(srv.HealthProbes, repo)
		srv.Closers = append(srv.Closers, func(context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		srv.Logger.Info("using sqlite prediction store", "path", cfg.Database.SQLitePath)
		return repo, nil
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), db.PoolConfig{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewPoolProbe(pool))
	srv.Closers = append(srv.Closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return db.NewPredictionRepository(pool), nil
}

func breakerSettings(cfg *config.Config) external.BreakerSettings {
	return external.BreakerSettings{
		ConsecutiveFailures: cfg.Outbound.BreakerThreshold,
		OpenTimeout:         cfg.Outbound.BreakerOpenTimeout,
	}
}

// newWeatherProvider returns the OpenWeather client, behind the Redis cache
// when REDIS_ADDR is set. An unreachable Redis only disables the cache.
func newWeatherProvider(ctx context.Context, cfg *config.Config, srv *core.Server) prediction.WeatherProvider {
	logger := srv.Logger
	ow := external.NewOpenWeatherClient(
		&http.Client{Timeout: cfg.Weather.Timeout},
		external.OpenWeatherConfig{
			APIKey:  cfg.Weather.APIKey.Unmask(),
			BaseURL: cfg.Weather.BaseURL,
			Breaker: breakerSettings(cfg),
			Logger:  logger,
		},
	)
	if !cfg.Weather.APIKey.IsSet() {
		logger.Warn("WEATHER_API_KEY not set; weather lookups will use fallback values")
	}

	if cfg.Redis.Addr == "" {
		return ow
	}

	rc, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password.Unmask(), cfg.Redis.DB)
	if err != nil {
		logger.Warn("weather cache disabled", "addr", cfg.Redis.Addr, "error", err)
		return ow
	}

	wc := cache.NewWeatherCache(rc, cfg.Redis.WeatherTTL, logger)
	srv.HealthProbes = append(srv.HealthProbes, wc)
	srv.Closers = append(srv.Closers, func(context.Context) error { return rc.Close() })
	return cache.NewCachedWeatherProvider(ow, wc, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// WriteTimeout leaves room for the request timeout plus encoding.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

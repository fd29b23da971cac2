package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/munchies-pricing/internal/config"
	"github.com/noah-isme/munchies-pricing/internal/obs"
	"github.com/noah-isme/munchies-pricing/internal/resilience"
	"github.com/noah-isme/munchies-pricing/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "munchies"), nil)

	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName: "munchies-pricing-worker",
		Endpoint:    envOrDefault("OBS_OTLP_ENDPOINT", ""),
		Exporter:    envOrDefault("OBS_TRACING_EXPORTER", "none"),
		Environment: cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if cfg.BackendBaseURL == "" {
		logger.Fatal().Msg("BACKEND_BASE_URL is required to credit wallets")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	handler := &wallet.Handler{
		Wallet: &wallet.Client{
			HTTP: resilience.HTTPClient{
				Client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker: resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
					WithTarget("wallet").
					WithLogger(logger),
				Target:      "wallet",
				BaseBackoff: cfg.RetryBase,
				MaxAttempts: cfg.RetryMaxAttempts,
				Jitter:      cfg.RetryJitter,
				Timeout:     cfg.BackendTimeout,
			},
			BaseURL:      cfg.BackendBaseURL,
			TenantHeader: cfg.TenantHeader,
		},
		Logger: logger,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.CashbackQueue: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task_type", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task_failed")
		}),
	})

	logger.Info().Str("queue", cfg.CashbackQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	// Run blocks until SIGTERM or SIGINT and drains in-flight tasks.
	if err := srv.Run(wallet.NewServeMux(handler)); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/munchies-pricing/internal/area"
	"github.com/noah-isme/munchies-pricing/internal/checkout"
	"github.com/noah-isme/munchies-pricing/internal/common"
	"github.com/noah-isme/munchies-pricing/internal/config"
	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/health"
	"github.com/noah-isme/munchies-pricing/internal/lock"
	"github.com/noah-isme/munchies-pricing/internal/obs"
	"github.com/noah-isme/munchies-pricing/internal/order"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/promo"
	"github.com/noah-isme/munchies-pricing/internal/ratelimit"
	"github.com/noah-isme/munchies-pricing/internal/resilience"
	"github.com/noah-isme/munchies-pricing/internal/security"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
	"github.com/noah-isme/munchies-pricing/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "munchies")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "munchies-pricing",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "none"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()
	queries := db.New(pool)

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var areaSource area.Source = &area.Store{Q: queries}
	if cfg.AreaSource == config.AreaSourceRemote {
		areaSource = &area.Client{
			HTTP:         backendClient(cfg, "areas", logger),
			BaseURL:      cfg.BackendBaseURL,
			TenantHeader: cfg.TenantHeader,
		}
	}
	areas := &area.Cached{Source: areaSource, Redis: redisClient, TTL: cfg.AreaCacheTTL, Logger: logger}

	promoSvc := &promo.Service{
		Store:               &promo.Store{Q: queries},
		Logger:              logger,
		DefaultPerUserLimit: cfg.DefaultPerUserLimit,
	}
	engine := &pricing.Engine{
		Promos:     promoSvc,
		Areas:      area.FeeLookup{Source: areas},
		ServiceFee: pricing.FlatAndPercentFee(cfg.ServiceFeeFlat, cfg.ServiceFeeBps, cfg.ServiceFeeMax),
	}
	orders := &order.Store{Pool: pool}

	asynqClient := asynq.NewClientFromRedisClient(redisClient)
	checkoutSvc := &checkout.Service{
		Pricing: engine,
		Promos:  promoSvc,
		Orders:  orders,
		Locks: lock.Locker{
			R:            redisClient,
			RetryBackoff: cfg.LockRetryBackoff,
			MaxWait:      cfg.LockMaxWait,
		},
		LockTTL:        cfg.LockTTL,
		PaymentBaseURL: cfg.PaymentRedirectBaseURL,
		Logger:         logger,
	}
	if cfg.CashbackWalletCredit {
		checkoutSvc.Cashback = &wallet.Enqueuer{Client: asynqClient, Queue: cfg.CashbackQueue}
	}

	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validator: checkout.NewValidator(), Logger: logger}
	orderHandler := &order.Handler{Orders: orders, Logger: logger}
	areaHandler := &area.Handler{Source: areas, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Scope: callerScope}
	calculateLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Name:   "charges_calculate",
			Key:    ratelimit.ByClientIP("charges_calculate"),
			Window: cfg.RateLimitCalculateWindow,
			Max:    cfg.RateLimitCalculateMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limiter_unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, cfg.TenantDefault).Middleware)
	r.Use(common.TrustedUser(cfg.UserHeader))
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), HSTSIncludeSubdomains: true, NoStore: true}.Middleware)
	r.Use(security.CORS(allowedOrigins(cfg), cfg.TenantHeader, cfg.UserHeader))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"database": health.PingProbe(pool),
			"redis":    health.RedisProbe(redisClient),
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/areas", areaHandler.List)
		v.With(calculateLimit.Middleware).Post("/orders/charges/calculate", checkoutHandler.CalculateCharges)
		v.With(idem.Middleware).Post("/orders", checkoutHandler.PlaceOrder)
		v.Get("/orders/{orderId}", orderHandler.Get)
		v.Post("/orders/{orderId}/status", checkoutHandler.UpdateStatus)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()
	health.SetReady(true)

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	health.SetReady(false)
	time.Sleep(envDurationMillis("SHUTDOWN_DRAIN_DELAY_MS", 2000))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	if err := asynqClient.Close(); err != nil {
		logger.Error().Err(err).Msg("close task client")
	}
	logger.Info().Msg("server stopped")
}

// callerScope keys idempotency records on tenant and user so two callers
// reusing the same key never see each other's response.
func callerScope(r *http.Request) string {
	userID, _ := common.UserID(r.Context())
	return tenant.Scope(r.Context()) + "\x00" + userID
}

func backendClient(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	return resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker: resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
			WithTarget(target).
			WithLogger(logger),
		Target:      target,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitter,
		Timeout:     cfg.BackendTimeout,
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "munchies-pricing"

	pool, err := pgxpool.NewWithConfig(initCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(initCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	ms := fallback
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			ms = parsed
		}
	}
	return time.Duration(ms) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

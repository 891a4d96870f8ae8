// Command server starts the ClipStream engagement API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipstream/internal/api"
	"clipstream/internal/auth"
	"clipstream/internal/comments"
	"clipstream/internal/events"
	"clipstream/internal/observability/logging"
	"clipstream/internal/server"
	"clipstream/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory or postgres)")
	sessionTTL := flag.Duration("session-ttl", 0, "lifetime of issued session tokens")
	sessionSliding := flag.Bool("session-sliding", false, "refresh session expiry on each authenticated request")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis throttle operations")
	eventsDriver := flag.String("events-driver", "", "engagement event queue driver (memory or redis)")
	eventsRedisAddr := flag.String("events-redis-addr", "", "Redis address for event queue transport")
	eventsRedisAddrs := flag.String("events-redis-addrs", "", "comma separated Redis addresses for event queue transport")
	eventsRedisUsername := flag.String("events-redis-username", "", "Redis username for event queue")
	eventsRedisPassword := flag.String("events-redis-password", "", "Redis password for event queue")
	eventsRedisStream := flag.String("events-redis-stream", "", "Redis stream key for engagement events")
	eventsRedisGroup := flag.String("events-redis-group", "", "Redis consumer group for engagement events")
	eventsRedisMasterName := flag.String("events-redis-sentinel-master", "", "Redis sentinel master name for event queue")
	eventsRedisPoolSize := flag.Int("events-redis-pool-size", 0, "maximum Redis connections for event queue")
	commentsBaseURL := flag.String("comments-base-url", "", "base URL of the remote comment service")
	commentsToken := flag.String("comments-token", "", "bearer token presented to the comment service")
	commentsTimeout := flag.Duration("comments-timeout", 0, "timeout for comment service requests")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPSTREAM_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPSTREAM_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")

	serverMode := modeValue(*mode, os.Getenv("CLIPSTREAM_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CLIPSTREAM_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("CLIPSTREAM_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("CLIPSTREAM_TLS_KEY"))

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	postgresResolvedDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("CLIPSTREAM_STORAGE_DRIVER"), postgresResolvedDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" && driver != "postgres" {
		logger.Error("production mode requires the postgres datastore driver", "driver", driver)
		os.Exit(1)
	}

	var store storage.Repository
	var postgresRepo *storage.PostgresRepository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("CLIPSTREAM_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresResolvedDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "CLIPSTREAM_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CLIPSTREAM_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CLIPSTREAM_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CLIPSTREAM_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "CLIPSTREAM_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "CLIPSTREAM_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CLIPSTREAM_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		postgresRepo, err = storage.NewPostgresRepository(bootCtx, postgresResolvedDSN, pgOptions...)
		if err == nil {
			if migrateErr := postgresRepo.Migrate(bootCtx); migrateErr != nil {
				logger.Error("failed to apply migrations", "error", migrateErr)
				os.Exit(1)
			}
			store = postgresRepo
		}
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionDriver, err := resolveSessionStoreDriver(*sessionStoreDriver, os.Getenv("CLIPSTREAM_SESSION_STORE"), driver)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}
	var sessionStore auth.SessionStore
	switch sessionDriver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		if postgresRepo == nil {
			logger.Error("postgres session store requires the postgres datastore driver")
			os.Exit(1)
		}
		sessionStore, err = auth.NewPostgresSessionStore(postgresRepo.Pool())
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unsupported session store driver", "driver", sessionDriver)
		os.Exit(1)
	}

	sessionOpts := []auth.SessionOption{auth.WithStore(sessionStore)}
	if resolveBool(*sessionSliding, "CLIPSTREAM_SESSION_SLIDING") {
		sessionOpts = append(sessionOpts, auth.WithSlidingExpiry())
	}
	sessions := auth.NewSessionManager(resolveDuration(*sessionTTL, "CLIPSTREAM_SESSION_TTL", 0), sessionOpts...)

	queueCfg := events.RedisQueueConfig{
		Addr:       firstNonEmpty(*eventsRedisAddr, os.Getenv("CLIPSTREAM_EVENTS_REDIS_ADDR")),
		Addrs:      splitAndTrim(firstNonEmpty(*eventsRedisAddrs, os.Getenv("CLIPSTREAM_EVENTS_REDIS_ADDRS"))),
		Username:   firstNonEmpty(*eventsRedisUsername, os.Getenv("CLIPSTREAM_EVENTS_REDIS_USERNAME")),
		Password:   firstNonEmpty(*eventsRedisPassword, os.Getenv("CLIPSTREAM_EVENTS_REDIS_PASSWORD")),
		Stream:     firstNonEmpty(*eventsRedisStream, os.Getenv("CLIPSTREAM_EVENTS_REDIS_STREAM")),
		Group:      firstNonEmpty(*eventsRedisGroup, os.Getenv("CLIPSTREAM_EVENTS_REDIS_GROUP")),
		MasterName: firstNonEmpty(*eventsRedisMasterName, os.Getenv("CLIPSTREAM_EVENTS_REDIS_SENTINEL_MASTER")),
		PoolSize:   resolveInt(*eventsRedisPoolSize, "CLIPSTREAM_EVENTS_REDIS_POOL_SIZE"),
	}
	queue, err := configureEventQueue(*eventsDriver, queueCfg, logger)
	if err != nil {
		logger.Error("failed to configure event queue", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, sessions)
	handler.Events = queue
	handler.Logger = logger

	commentServiceURL := firstNonEmpty(*commentsBaseURL, os.Getenv("CLIPSTREAM_COMMENTS_BASE_URL"))
	if commentServiceURL != "" {
		client, err := comments.NewClient(comments.ClientConfig{
			BaseURL:    commentServiceURL,
			Token:      firstNonEmpty(*commentsToken, os.Getenv("CLIPSTREAM_COMMENTS_TOKEN")),
			HTTPClient: &http.Client{Timeout: resolveDuration(*commentsTimeout, "CLIPSTREAM_COMMENTS_TIMEOUT", 10*time.Second)},
		})
		if err != nil {
			logger.Error("failed to configure comment service client", "error", err)
			os.Exit(1)
		}
		handler.Comments = comments.NewGateway(client, store, logging.WithComponent(logger, "comments"))
	} else {
		logger.Warn("comment service not configured; comment endpoints disabled")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sessionPurgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), sessions, 15*time.Minute)
	defer sessionPurgeStop()

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "CLIPSTREAM_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "CLIPSTREAM_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "CLIPSTREAM_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "CLIPSTREAM_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("CLIPSTREAM_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("CLIPSTREAM_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*rateRedisTimeout, "CLIPSTREAM_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		TLS:         server.TLSConfig{CertFile: tlsCertPath, KeyFile: tlsKeyPath},
		RateLimit:   rateCfg,
		Logger:      logger,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("ClipStream API listening", "addr", listenAddr, "mode", serverMode, "driver", driver)
		if tlsCertPath != "" && tlsKeyPath != "" {
			logger.Info("TLS enabled", "cert_file", tlsCertPath)
		}
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close event queue", "error", err)
		}
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

func configureEventQueue(driver string, cfg events.RedisQueueConfig, logger *slog.Logger) (events.Queue, error) {
	driver = strings.ToLower(strings.TrimSpace(firstNonEmpty(driver, os.Getenv("CLIPSTREAM_EVENTS_DRIVER"))))
	switch driver {
	case "redis":
		if len(cfg.Addrs) == 0 && strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("redis addr is required for the event queue")
		}
		cfg.Logger = logging.WithComponent(logger, "event-queue")
		return events.NewRedisQueue(cfg)
	case "", "memory":
		return events.NewMemoryQueue(128), nil
	default:
		return nil, fmt.Errorf("unsupported event queue driver %q", driver)
	}
}

func resolveSessionStoreDriver(flagValue, envValue, storageDriver string) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(firstNonEmpty(flagValue, envValue)))
	if driver == "" {
		if storageDriver == "postgres" {
			return "postgres", nil
		}
		return "memory", nil
	}
	switch driver {
	case "memory", "postgres":
		return driver, nil
	default:
		return "", fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CLIPSTREAM_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Dr1DeX/orgtree/modules/org"
	"github.com/Dr1DeX/orgtree/pkg/application"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
	"github.com/Dr1DeX/orgtree/pkg/httpapi"
	"github.com/Dr1DeX/orgtree/pkg/logging"
	"github.com/Dr1DeX/orgtree/pkg/metrics"
	"github.com/Dr1DeX/orgtree/pkg/middleware"
	"github.com/Dr1DeX/orgtree/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	poolConfig, err := pgxpool.ParseConfig(conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	poolConfig.MaxConns = conf.Database.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if conf.Org.UsesRedis() || (conf.RateLimit.Enabled && conf.RateLimit.Storage == "redis") {
		rdb = redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis is unreachable; cache reads will miss until it recovers")
		}
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   pool,
		Logger: logger,
	})
	app.RegisterMiddleware(
		middleware.WithLogger(logger, middleware.LoggerOptions{
			RequestIDHeader: conf.RequestIDHeader,
			APIPrefixes:     []string{"/org/api"},
		}),
		middleware.Provide(pool),
		middleware.Cors(conf.CORSAllowedOrigins...),
	)
	if conf.RateLimit.Enabled {
		store := middleware.NewMemoryStore()
		if conf.RateLimit.Storage == "redis" && rdb != nil {
			if redisStore, err := middleware.NewRedisStore(rdb); err != nil {
				logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
			} else {
				store = redisStore
			}
		}
		app.RegisterMiddleware(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}))
	}

	orgOptions := &org.ModuleOptions{Config: conf, Logger: logger}
	if rdb != nil {
		orgOptions.Redis = rdb
	}
	if err := app.RegisterModules(org.NewModule(orgOptions)); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiPrefixes := []string{"/org/api"}
	notFound := httpapi.FallbackHandler(http.StatusNotFound, "ORG_ROUTE_NOT_FOUND", apiPrefixes, requestIDOf)
	notAllowed := httpapi.FallbackHandler(http.StatusMethodNotAllowed, "ORG_METHOD_NOT_ALLOWED", apiPrefixes, requestIDOf)

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := server.NewHTTPServer(app, notFound, notAllowed).Start(runCtx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func requestIDOf(r *http.Request) string {
	return composables.UseRequestID(r.Context())
}

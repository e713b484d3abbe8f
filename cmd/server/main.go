// Command server runs the screenleads backend API.
//
// Configuration is read from a YAML file (-config, SCREENLEADS_CONFIG,
// ./config.yaml or /etc/screenleads/config.yaml) and SCREENLEADS_*
// environment variables. See pkg/config for the full list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/auth/apikey"
	"github.com/screenleads/backend/pkg/auth/jwt"
	"github.com/screenleads/backend/pkg/auth/route"
	"github.com/screenleads/backend/pkg/config"
	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/realtime"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/storage/memory"
	"github.com/screenleads/backend/pkg/storage/postgres"
	"github.com/screenleads/backend/pkg/transport"
	transporthttp "github.com/screenleads/backend/pkg/transport/http"
)

// backend is what the server needs from a store.
type backend interface {
	storage.UserStore
	storage.TenantReader
	storage.SessionPool
	auth.IdentityLoader
	apikey.Store
	HealthCheck(ctx context.Context) error
	Close() error
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := jwt.New(jwt.Config{
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.Auth.TokenTTL,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	public, err := route.New(cfg.Auth.PublicRoutes)
	if err != nil {
		return fmt.Errorf("compiling public routes: %w", err)
	}

	authn := &auth.BearerAuthenticator{Verifier: tokens, Loader: store}

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	keys := &apikey.Stage{
		Authenticator: &apikey.Authenticator{Store: store},
		Limiter:       limiter,
		TestLimit:     cfg.RateLimit.APIKeyTestLimit,
		LiveLimit:     cfg.RateLimit.APIKeyLiveLimit,
	}

	var throttle *transport.Throttle
	if cfg.RateLimit.LoginRate > 0 {
		throttle = transport.NewThrottle(transport.ThrottleConfig{
			Rate:  rate.Limit(cfg.RateLimit.LoginRate),
			Burst: cfg.RateLimit.LoginBurst,
			Name:  "login",
		})
		throttle.Start(ctx.Done())
	}

	hub := realtime.NewHub(authn, realtime.NewRegistry())
	hub.AllowedOrigins = cfg.Realtime.AllowedOrigins
	hub.ConnectTimeout = cfg.Realtime.ConnectTimeout

	router := transporthttp.NewRouter(transporthttp.Deps{
		Authn:          authn,
		Public:         public,
		Tokens:         tokens,
		Users:          store,
		Tenants:        store,
		Pool:           store,
		Health:         store,
		APIKeys:        keys,
		LoginThrottle:  throttle,
		Hub:            hub,
		CleanupTimeout: cfg.Storage.CleanupTimeout,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Logger:         logger,
	})

	srv := transporthttp.NewServer(router,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithOnShutdown(hub.Shutdown),
	)

	logger.Info("configuration loaded",
		"storage", cfg.Storage.Type,
		"public_routes", len(cfg.Auth.PublicRoutes),
		"redis", cfg.RateLimit.RedisAddr != "",
		"debug", debug.Categories(),
	)
	return srv.ListenAndServeContext(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg := cfg.Storage.Postgres
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			CloseTimeout:   cfg.Storage.CleanupTimeout,
			MigrateOnStart: pg.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", pg.MaxConns)
		return s, nil
	default:
		slog.Warn("storage is in-memory; data is lost on restart")
		return memory.New(), nil
	}
}

// newLimiter returns the API key limiter and a function releasing it.
func newLimiter(cfg *config.Config) (auth.RateLimiter, func()) {
	if cfg.RateLimit.RedisAddr == "" {
		return auth.NewInProcessLimiter(time.Minute), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
	})
	slog.Info("api key rate limiting uses redis", "addr", cfg.RateLimit.RedisAddr)
	return auth.NewRedisLimiter(client, time.Minute), func() { client.Close() }
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"reservo/backend/internal/auth"
	"reservo/backend/internal/cache/rediscache"
	"reservo/backend/internal/config"
	"reservo/backend/internal/service/reservations"
	"reservo/backend/internal/store"
	"reservo/backend/internal/store/memory"
	"reservo/backend/internal/store/postgres"
	"reservo/backend/internal/transport/rest"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "reservo-server"),
	)
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn(".env load failed", slog.Any("err", err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "reservo-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("time_location", cfg.Location.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		os.Exit(1)
	}
	defer closeStorage()

	svcOpts := []reservations.Option{
		reservations.WithLocation(cfg.Location),
		reservations.WithLogger(log.With(slog.String("component", "service.reservations"))),
	}
	if cfg.RedisAddr != "" {
		cache, rdb, err := rediscache.Dial(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		}, log.With(slog.String("component", "cache.redis")))
		if err != nil {
			log.Warn("redis unavailable; listing cache disabled", slog.String("redis_addr", cfg.RedisAddr), slog.Any("err", err))
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Warn("redis close failed", slog.Any("err", err))
				}
			}()
			svcOpts = append(svcOpts, reservations.WithListCache(cache))
			log.Info("listing cache enabled", slog.String("redis_addr", cfg.RedisAddr), slog.Duration("ttl", cfg.CacheTTL))
		}
	}
	svc := reservations.NewService(repos.reservations, svcOpts...)

	routerCfg := rest.RouterConfig{
		Reservations:    rest.NewReservationsHandler(svc, cfg.Location, log),
		Ping:            repos.reservations.Ping,
		RequestTimeout:  cfg.HTTPRequestTimeout,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
	}
	if cfg.AuthEnabled {
		issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			log.Error("auth setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		if cfg.BootstrapUsername != "" {
			if _, err := auth.EnsureUser(ctx, repos.users, cfg.BootstrapUsername, cfg.BootstrapPassword); err != nil {
				log.Error("bootstrap user setup failed", slog.String("username", cfg.BootstrapUsername), slog.Any("err", err))
				os.Exit(1)
			}
			log.Info("bootstrap user ready", slog.String("username", cfg.BootstrapUsername))
		}
		routerCfg.Auth = rest.NewAuthHandler(auth.NewAuthenticator(repos.users, issuer), log)
		routerCfg.Verifier = issuer
	} else {
		log.Warn("authentication disabled")
	}

	if parseLogLevel(cfg.LogLevel) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewRouter(routerCfg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, srv, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

type repositories struct {
	reservations store.ReservationRepository
	users        store.UserRepository
}

// openStorage logs its own failures.
func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (repositories, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		st := memory.New()
		return repositories{reservations: st, users: st}, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := postgres.Open(openCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return repositories{}, nil, err
	}

	closeFn := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
	return repositories{
		reservations: postgres.NewReservationRepo(db),
		users:        postgres.NewUserRepo(db),
	}, closeFn, nil
}

func shutdown(log *slog.Logger, srv *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing stop", slog.Any("err", err))
		_ = srv.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}

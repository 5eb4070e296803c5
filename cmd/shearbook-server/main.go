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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shearbook/backend/internal/booking"
	"shearbook/backend/internal/config"
	"shearbook/backend/internal/notify"
	"shearbook/backend/internal/observability"
	"shearbook/backend/internal/store/postgres"
	httptransport "shearbook/backend/internal/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "shearbook-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "shearbook-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr()), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OtelEnabled {
		shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
			Enabled:      true,
			ServiceName:  "shearbook-server",
			OTLPEndpoint: cfg.OtelEndpoint,
			SampleRatio:  cfg.OtelSampleRatio,
		})
		if err != nil {
			log.Error("tracing setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Warn("tracing shutdown failed", slog.Any("err", err))
			}
		}()
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	var notifier notify.Notifier = notify.Nop{}
	if kn := notify.NewKafkaNotifier(notify.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, log); kn != nil {
		notifier = kn
		defer func() {
			if err := kn.Close(); err != nil {
				log.Warn("kafka writer close failed", slog.Any("err", err))
			}
		}()
		log.Info("kafka notifier enabled", slog.String("topic", cfg.KafkaTopic))
	}

	svc := booking.NewService(
		postgres.NewAppointmentRepo(db),
		postgres.NewScheduleRepo(db),
		postgres.NewCatalogRepo(db),
		notifier,
		booking.Defaults{
			Timezone:               cfg.BookingTimezone,
			SlotGranularityMinutes: cfg.SlotGranularityMinutes,
			MinLeadTimeMinutes:     cfg.MinLeadTimeMinutes,
			MaxAdvanceDays:         cfg.MaxAdvanceDays,
		},
	)

	middlewares := []httptransport.Middleware{
		httptransport.WithRequestID,
		httptransport.WithAccessLog(log),
		httptransport.WithBodyLimit(cfg.HTTPBodyLimitBytes),
		httptransport.WithTimeout(cfg.HTTPRequestTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		limiter := httptransport.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "shearbook:rl")
		middlewares = append(middlewares, limiter.Middleware(log, true))
		log.Info("rate limiter enabled", slog.Int("limit", cfg.RateLimit), slog.Duration("window", cfg.RateLimitWindow))
	}

	handler := httptransport.Chain(httptransport.NewBookingServer(svc, log).Routes(), middlewares...)
	handler = otelhttp.NewHandler(handler, "shearbook-server")

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr()))

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

func shutdown(log *slog.Logger, srv *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing close", slog.Any("err", err))
		if err := srv.Close(); err != nil {
			log.Warn("http close failed", slog.Any("err", err))
		}
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

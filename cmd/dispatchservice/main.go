package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/booking/handler"
	"github.com/example/ridedispatch/internal/booking/repository"
	bookingservice "github.com/example/ridedispatch/internal/booking/service"
	"github.com/example/ridedispatch/internal/directory"
	"github.com/example/ridedispatch/internal/dispatch"
	"github.com/example/ridedispatch/internal/events"
	"github.com/example/ridedispatch/internal/http/middleware"
	"github.com/example/ridedispatch/internal/notify"
	"github.com/example/ridedispatch/internal/promo"
	"github.com/example/ridedispatch/internal/watchdog"
	"github.com/example/ridedispatch/pkg/observability"
)

type appConfig struct {
	HTTPAddr     string
	RedisAddr    string
	NATSURL      string
	JWTSecret    string
	OfferTimeout time.Duration
	WatchdogPoll time.Duration
	ConsumerMax  int
	ReadRate     float64
	ReadBurst    float64
	WriteRate    float64
	WriteBurst   float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("dispatch-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "dispatch-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("dispatchservice")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	store := repository.NewMemoryStore()
	drivers := buildDirectory(redisClient)
	notifier := buildNotifier(natsConn)
	promoStore := buildPromoStore(redisClient)

	// Without a broker the create path triggers dispatch in-process. The
	// engine is built after the trigger, so the trigger resolves it lazily.
	var engine *bookingservice.Engine
	var publisher domain.EventPublisher
	if natsConn != nil {
		publisher = events.NewPublisher(natsConn, events.DefaultSubject)
	} else {
		logger.Warn("nats unavailable, using in-process dispatch trigger")
		publisher = events.NewLocalTrigger(events.DispatcherFunc(func(ctx context.Context, id uuid.UUID) error {
			return engine.OnBookingCreated(ctx, id)
		}), logger.Named("trigger"))
	}

	engine = bookingservice.New(store, drivers, notifier, dispatch.FirstAvailable(), publisher, domain.SystemClock{}, logger.Named("dispatch"))
	promos := promo.NewService(promoStore, store, domain.SystemClock{}, logger.Named("promo"))

	if natsConn != nil {
		consumer := events.NewConsumer(natsConn, engine, logger.Named("consumer"), events.ConsumerConfig{
			RetryMax: cfg.ConsumerMax,
		})
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	dog, err := watchdog.New(store, engine, domain.SystemClock{}, logger.Named("watchdog"), watchdog.Config{
		OfferTimeout: cfg.OfferTimeout,
		PollInterval: cfg.WatchdogPoll,
	})
	if err != nil {
		logger.Fatal("watchdog config", zap.Error(err))
	}
	go func() {
		if err := dog.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("offer watchdog stopped", zap.Error(err))
		}
	}()

	limiter := middleware.NewRateLimiter(redisClient,
		middleware.BucketConfig{Rate: cfg.ReadRate, Burst: cfg.ReadBurst},
		middleware.BucketConfig{Rate: cfg.WriteRate, Burst: cfg.WriteBurst},
	)

	r := chi.NewRouter()
	r.Use(limiter.Middleware)
	r.Mount("/", handler.NewHTTP(engine, promos, cfg.JWTSecret).Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatch service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildDirectory(redisClient *redis.Client) domain.DriverDirectory {
	if redisClient == nil {
		return directory.NewMemoryDirectory()
	}
	return directory.NewRedisDirectory(redisClient, "")
}

func buildNotifier(natsConn *nats.Conn) domain.Notifier {
	if natsConn == nil {
		return notify.NewRecorder()
	}
	return notify.NewNATSNotifier(natsConn, "")
}

func buildPromoStore(redisClient *redis.Client) promo.Store {
	if redisClient == nil {
		return promo.NewMemoryStore()
	}
	return promo.NewRedisStore(redisClient)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		NATSURL:      os.Getenv("NATS_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OfferTimeout: time.Duration(parseIntEnv("OFFER_TIMEOUT_SEC", 30)) * time.Second,
		WatchdogPoll: time.Duration(parseIntEnv("WATCHDOG_POLL_MS", 0)) * time.Millisecond,
		ConsumerMax:  parseIntEnv("CONSUMER_RETRY_MAX", 3),
		ReadRate:     parseFloatEnv("RATE_READ_PER_SEC", 20),
		ReadBurst:    parseFloatEnv("RATE_READ_BURST", 40),
		WriteRate:    parseFloatEnv("RATE_WRITE_PER_SEC", 5),
		WriteBurst:   parseFloatEnv("RATE_WRITE_BURST", 10),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

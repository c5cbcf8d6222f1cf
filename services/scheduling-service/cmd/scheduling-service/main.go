package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/checkoutpanda/panda/libs/config"
	"github.com/checkoutpanda/panda/libs/db"
	"github.com/checkoutpanda/panda/libs/httpx"
	"github.com/checkoutpanda/panda/libs/kafkax"
	otelx "github.com/checkoutpanda/panda/libs/otel"
	"github.com/checkoutpanda/panda/libs/runtime"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/consumer"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/gcal"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/handlers"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/inbox"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/outbox"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/schedule"
	"github.com/checkoutpanda/panda/services/scheduling-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	bookingRepo := storage.NewBookingRepository(pool)
	settingsRepo := storage.NewSettingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	var freeBusy schedule.FreeBusySource
	if clientID := config.String("GOOGLE_OAUTH_CLIENT_ID", ""); clientID != "" {
		freeBusy = gcal.NewClient(clientID, config.String("GOOGLE_OAUTH_CLIENT_SECRET", ""), settingsRepo, logger)
	} else {
		logger.Info("google calendar integration disabled (no oauth client configured)")
	}
	engine := schedule.NewEngine(bookingRepo, freeBusy, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	startEntitlementsConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		consumerCfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			// Both subscription events carry the same limit fields; booking
			// creation enforces against this local cache.
			var payload struct {
				MerchantID         string `json:"merchant_id"`
				Tier               string `json:"tier"`
				MaxMonthlyBookings int    `json:"max_monthly_bookings"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.MerchantID == "" || payload.Tier == "" || payload.MaxMonthlyBookings <= 0 {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if err := bookingRepo.UpsertMerchantEntitlements(ctx, tx, storage.MerchantEntitlements{
				MerchantID:         payload.MerchantID,
				Tier:               payload.Tier,
				MaxMonthlyBookings: payload.MaxMonthlyBookings,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go eventConsumer.Run(ctx)
	}
	startEntitlementsConsumer(config.String("KAFKA_CONSUME_TOPIC", "billing.subscription.activated.v1"))
	startEntitlementsConsumer(config.String("KAFKA_CONSUME_TOPIC_2", "billing.subscription.canceled.v1"))

	bookingHandler := handlers.NewBookingHandler(bookingRepo, settingsRepo, engine, outboxRepo, logger)
	settingsHandler := handlers.NewSettingsHandler(settingsRepo, logger)

	// Public booking-page routes take unauthenticated traffic, so they get
	// their own rate limit; merchant routes sit behind the dashboard.
	public := func(h http.Handler) http.Handler { return h }
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		limitPerMinute := 120
		if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
			limitPerMinute = v
		}
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		mw := rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
		public = func(h http.Handler) http.Handler { return mw(h) }
		logger.Info("public route rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/api/v1/public/dates", public(http.HandlerFunc(bookingHandler.Dates)))
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(bookingHandler.Slots)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(bookingHandler.Create)))
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			settingsHandler.Get(w, r)
		case http.MethodPut:
			settingsHandler.Update(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/settings/google/connect", settingsHandler.ConnectGoogle)
	mux.HandleFunc("/api/v1/settings/google/disconnect", settingsHandler.DisconnectGoogle)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/auth"
	"github.com/md-rashed-zaman/medibook/libs/config"
	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/medibook/libs/otel"
	"github.com/md-rashed-zaman/medibook/libs/runtime"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/audit"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/avatars"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/cache"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/catalog"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/handlers"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/medications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/notifications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/outbox"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/reviews"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/storage"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/users"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	flushSentry, err := runtime.InitSentry(cfg.Service)
	if err != nil {
		logger.Error("sentry setup failed", "err", err)
	}
	defer flushSentry()

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "versions", applied)
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var avatarUploader users.AvatarUploader
	if cfg.Avatars.Endpoint != "" {
		store, err := avatars.NewMinio(ctx, cfg.Avatars)
		if err != nil {
			logger.Error("object storage unavailable, avatar uploads disabled", "err", err)
		} else {
			avatarUploader = avatars.NewUploader(store, cfg.Avatars.PublicURL)
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "minio", Check: store.ReadyCheck})
		}
	}

	st := storage.New(pool)
	catalogStore := st.Catalog()

	var couponCache coupons.Cache
	if rdb != nil {
		couponCache = cache.NewCoupons(rdb, cfg.CouponCacheTTL)
	}
	couponSvc := coupons.NewService(st.Coupons(), catalogStore, couponCache, coupons.Engine{Currency: coupons.VND}, logger)
	apptSvc := appointments.NewService(st.Appointments(), catalogStore, couponSvc, cfg.Timezone, logger)

	var gateway payments.Gateway
	if g := payments.NewStripeGateway(cfg.Stripe); g != nil {
		gateway = g
	} else {
		logger.Info("stripe not configured, online checkout disabled")
	}
	paySvc := payments.NewService(st.Payments(), gateway, couponSvc, logger)

	issue := func(u model.User) (string, time.Time, error) {
		return auth.SignHS256(u.ID, string(u.RoleType), u.Role.ID(), cfg.TokenTTL, cfg.JWTSecret)
	}
	userSvc := users.NewService(st.Users(), issue, avatarUploader, logger)
	authn := access.NewAuthenticator(cfg.JWTSecret, st.Users(), logger)
	auditLog := audit.NewRecorder(st.Audit(), logger)

	var globalLimiter, loginLimiter httpx.Limiter
	if rdb != nil {
		globalLimiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitPrefix)
		loginLimiter = httpx.NewRedisLimiter(rdb, cfg.LoginPerMinute, time.Minute, cfg.RateLimitPrefix+":login")
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
	} else {
		globalLimiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		loginLimiter = httpx.NewMemoryLimiter(cfg.LoginPerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
	}
	globalLimit := httpx.RateLimit(globalLimiter, logger, cfg.RateLimitFailOpen)
	loginLimit := httpx.RateLimit(loginLimiter, logger, cfg.RateLimitFailOpen)

	api := handlers.NewRouter(handlers.Deps{
		Authenticate:  authn.Authenticate,
		LoginLimiter:  loginLimit,
		Audited:       auditLog.Middleware,
		Auth:          handlers.NewAuthHandler(userSvc, logger),
		Users:         handlers.NewUserHandler(userSvc, logger),
		Catalog:       handlers.NewCatalogHandler(catalog.NewService(catalogStore), logger),
		Coupons:       handlers.NewCouponHandler(couponSvc, logger),
		Appointments:  handlers.NewAppointmentHandler(apptSvc, paySvc, logger),
		Reviews:       handlers.NewReviewHandler(reviews.NewService(st.Reviews(), logger), logger),
		Medications:   handlers.NewMedicationHandler(medications.NewService(st.Medications()), logger),
		Notifications: handlers.NewNotificationHandler(notifications.NewService(st.Notifications()), logger),
		Audit:         handlers.NewAuditHandler(auditLog, logger),
		StripeWebhook: handlers.NewStripeWebhookHandler(paySvc, cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, logger),
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", httpx.Chain(api, globalLimit))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httpx.RequestIDHeader, handlers.IdempotencyHeader},
			ExposedHeaders:   []string{httpx.RequestIDHeader, handlers.ReplayedHeader},
			AllowCredentials: cfg.CORSCredentials,
			MaxAge:           cfg.CORSMaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "hospital-api")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	publisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		RetainFor: 7 * 24 * time.Hour,
	})
	go publisher.Run(ctx)

	if cfg.ReconcileEnabled && gateway != nil {
		rec := payments.NewReconciler(paySvc, payments.AdvisoryLocker(pool, cfg.ReconcileLockKey), logger, cfg.Reconcile)
		go rec.Run(ctx)
	}

	logger.Info("clinic timezone", "tz", cfg.Timezone.String())
	if err := runtime.Serve(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
}

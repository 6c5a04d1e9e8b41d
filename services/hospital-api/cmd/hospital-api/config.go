package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/config"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/avatars"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
)

// Config is everything hospital-api reads from the environment.
type Config struct {
	Service     string
	Port        string
	DatabaseURL string
	AutoMigrate bool
	Timezone    *time.Location

	JWTSecret string
	TokenTTL  time.Duration

	KafkaBrokers string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CouponCacheTTL time.Duration

	RateLimitPerMinute int
	LoginPerMinute     int
	RateLimitPrefix    string
	RateLimitFailOpen  bool

	BodyLimit      int64
	RequestTimeout time.Duration

	CORSOrigins     []string
	CORSCredentials bool
	CORSMaxAge      time.Duration

	Stripe                 payments.StripeConfig
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	Reconcile              payments.ReconcilerConfig
	ReconcileEnabled       bool
	ReconcileLockKey       int64

	Avatars avatars.Config
}

func loadConfig() (Config, error) {
	cfg := Config{
		Service:     config.String("SERVICE_NAME", "hospital-api"),
		AutoMigrate: config.Bool("DB_AUTO_MIGRATE", true),

		JWTSecret: config.String("JWT_SECRET", ""),
		TokenTTL:  config.Duration("JWT_TTL", 24*time.Hour),

		KafkaBrokers: config.String("KAFKA_BROKERS", ""),

		RedisAddr:      config.String("REDIS_ADDR", ""),
		RedisPassword:  config.String("REDIS_PASSWORD", ""),
		RedisDB:        config.Int("REDIS_DB", 0),
		CouponCacheTTL: config.Duration("COUPON_CACHE_TTL", time.Minute),

		RateLimitPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 120),
		LoginPerMinute:     config.Int("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		RateLimitPrefix:    config.String("RATE_LIMIT_PREFIX", "rl"),
		RateLimitFailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),

		// Large enough for an avatar upload plus multipart overhead.
		BodyLimit:      int64(config.Int("REQUEST_BODY_LIMIT_BYTES", avatars.MaxSize+1<<20)),
		RequestTimeout: config.Duration("REQUEST_TIMEOUT", 15*time.Second),

		CORSOrigins:     config.List("CORS_ALLOWED_ORIGINS", ""),
		CORSCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAge:      config.Duration("CORS_MAX_AGE", 10*time.Minute),

		Stripe: payments.StripeConfig{
			SecretKey:  config.String("STRIPE_SECRET_KEY", ""),
			Currency:   config.String("STRIPE_CURRENCY", "vnd"),
			SuccessURL: config.String("CHECKOUT_SUCCESS_URL", ""),
			CancelURL:  config.String("CHECKOUT_CANCEL_URL", ""),
			SessionTTL: config.Duration("CHECKOUT_SESSION_TTL", time.Hour),
		},
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
		Reconcile: payments.ReconcilerConfig{
			Interval:  config.Duration("PAYMENT_RECONCILE_INTERVAL", 5*time.Minute),
			Grace:     config.Duration("PAYMENT_RECONCILE_GRACE", 15*time.Minute),
			BatchSize: config.Int("PAYMENT_RECONCILE_BATCH_SIZE", 50),
		},
		ReconcileEnabled: config.Bool("PAYMENT_RECONCILE_ENABLED", true),
		ReconcileLockKey: int64(config.Int("PAYMENT_RECONCILE_LOCK_KEY", 4242001)),

		Avatars: avatars.Config{
			Endpoint:  config.String("MINIO_ENDPOINT", ""),
			AccessKey: config.String("MINIO_ACCESS_KEY", ""),
			SecretKey: config.String("MINIO_SECRET_KEY", ""),
			Bucket:    config.String("MINIO_BUCKET", "avatars"),
			UseSSL:    config.Bool("MINIO_USE_SSL", false),
			PublicURL: config.String("MINIO_PUBLIC_URL", ""),
		},
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8080"); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	tz := config.String("CLINIC_TIMEZONE", "Asia/Ho_Chi_Minh")
	if cfg.Timezone, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("CLINIC_TIMEZONE %q: %w", tz, err)
	}
	if cfg.Avatars.Endpoint != "" && cfg.Avatars.PublicURL == "" {
		cfg.Avatars.PublicURL = avatars.DefaultPublicURL(cfg.Avatars)
	}
	return cfg, nil
}

package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	Port        string `env:"PORT" envDefault:"3333"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	DatabaseURL string `env:"DATABASE_URL"`

	ClerkSecretKey string `env:"CLERK_SECRET_KEY"`

	// Shared secret for the scheduled-job trigger endpoints.
	CronSecret string `env:"CRON_SECRET"`

	// FCM_SERVICE_ACCOUNT_JSON holds base64 encoded service account
	// credentials; FCMCredentialsFile is the local fallback.
	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE" envDefault:"./serviceAccountKey.json"`

	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`

	// Calendar days are truncated in this timezone for check-in dates
	// and reconciliation.
	ReferenceTimezone string `env:"REFERENCE_TIMEZONE" envDefault:"UTC"`

	// InsightServiceURL is the optional text-generation service used to
	// enrich notification copy. Empty disables it.
	InsightServiceURL string `env:"INSIGHT_SERVICE_URL"`

	// StreakUnit is "per_task" or "per_day".
	StreakUnit string `env:"STREAK_UNIT" envDefault:"per_task"`

	ReconcilerBatchSize int `env:"RECONCILER_BATCH_SIZE" envDefault:"200"`

	// Per-IP request rate limiting.
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	// RunWorkers enables the in-process tickers for the daily jobs. Off
	// when an external scheduler hits the cron endpoints instead.
	RunWorkers bool `env:"RUN_WORKERS" envDefault:"false"`
}

func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := env.Parse(&Cfg); err != nil {
		return err
	}
	return nil
}

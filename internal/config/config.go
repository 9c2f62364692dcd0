// Package config reads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	ServerAddr  string
	AutoMigrate bool

	LoanPeriodDays    int
	RenewalLimit      int
	HoldPickupDays    int
	RequestPickupDays int
	FinePerDay        int

	MailRatePerMin int
	MailBatchSize  int
	SMTPAddr       string
	SMTPFrom       string
	SMTPUsername   string
	SMTPPassword   string

	Schedules Schedules

	OTLPEndpoint string
	ServiceName  string
}

// Schedules are standard five-field cron expressions. An empty value
// disables the job.
type Schedules struct {
	ExpireHolds    string
	ExpireRequests string
	DueSoon        string
	Overdue        string
	HoldsExpiring  string
	DeliverMail    string
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] config: no .env file found, using process environment")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=circulation port=5432 sslmode=disable"),
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),

		LoanPeriodDays:    getEnvInt("LOAN_PERIOD_DAYS", 14),
		RenewalLimit:      getEnvInt("RENEWAL_LIMIT", 2),
		HoldPickupDays:    getEnvInt("HOLD_PICKUP_DAYS", 7),
		RequestPickupDays: getEnvInt("REQUEST_PICKUP_DAYS", 3),
		FinePerDay:        getEnvInt("FINE_PER_DAY", 10),

		MailRatePerMin: getEnvInt("MAIL_RATE_PER_MIN", 60),
		MailBatchSize:  getEnvInt("MAIL_BATCH_SIZE", 50),
		SMTPAddr:       getEnv("SMTP_ADDR", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "library@localhost"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),

		Schedules: Schedules{
			ExpireHolds:    getEnv("CRON_EXPIRE_HOLDS", "0 * * * *"),
			ExpireRequests: getEnv("CRON_EXPIRE_REQUESTS", "5 * * * *"),
			DueSoon:        getEnv("CRON_DUE_SOON", "0 9 * * *"),
			Overdue:        getEnv("CRON_OVERDUE", "0 10 * * *"),
			HoldsExpiring:  getEnv("CRON_HOLDS_EXPIRING", "0 11 * * *"),
			DeliverMail:    getEnv("CRON_DELIVER_MAIL", "*/5 * * * *"),
		},

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "circulation"),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		log.Printf("[WARN] config: %s=%q is not a non-negative integer, using %d", key, v, def)
		return def
	}
	return i
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LOAN_PERIOD_DAYS", "RENEWAL_LIMIT", "HOLD_PICKUP_DAYS", "REQUEST_PICKUP_DAYS", "FINE_PER_DAY", "MAIL_BATCH_SIZE", "AUTO_MIGRATE", "CRON_DUE_SOON"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, 2, cfg.RenewalLimit)
	assert.Equal(t, 7, cfg.HoldPickupDays)
	assert.Equal(t, 3, cfg.RequestPickupDays)
	assert.Equal(t, 10, cfg.FinePerDay)
	assert.Equal(t, 50, cfg.MailBatchSize)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("RENEWAL_LIMIT", " 5 ")
	t.Setenv("AUTO_MIGRATE", "off")
	t.Setenv("CRON_OVERDUE", "")
	t.Setenv("SERVER_ADDR", ":9090")

	cfg := Load()

	assert.Equal(t, 21, cfg.LoanPeriodDays)
	assert.Equal(t, 5, cfg.RenewalLimit)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "", cfg.Schedules.Overdue, "an explicitly empty schedule disables the job")
	assert.Equal(t, ":9090", cfg.ServerAddr)
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("FINE_PER_DAY", "ten")
	assert.Equal(t, 10, getEnvInt("FINE_PER_DAY", 10))

	t.Setenv("FINE_PER_DAY", "-3")
	assert.Equal(t, 10, getEnvInt("FINE_PER_DAY", 10))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanHours(t *testing.T) {
	table, err := ParsePlanHours(DefaultPlanHours)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"standard": 24, "professional": 4, "enterprise": 1}, table)

	table, err = ParsePlanHours(" Gold : 2 , standard:24,")
	require.NoError(t, err)
	assert.Equal(t, 2, table["gold"])
	assert.Equal(t, 24, table["standard"])

	for _, raw := range []string{"", "standard", "standard:0", "standard:x"} {
		_, err := ParsePlanHours(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_PLAN_HOURS", "")
	t.Setenv("SWEEP_TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SLA.PlanHours["professional"])
	assert.Equal(t, 4*time.Hour, cfg.SLA.WarningWindow())
	assert.Equal(t, 168, cfg.Sweep.AutoCloseAfterHours)
	assert.Equal(t, 48, cfg.Sweep.ReminderThrottleHours)
	assert.Equal(t, 72, cfg.Sweep.ReconcileHours)
	assert.Equal(t, time.UTC, cfg.Sweep.Location())
}

func TestLoadRejectsUnknownDefaultPlan(t *testing.T) {
	t.Setenv("SLA_PLAN_HOURS", "enterprise:1")
	t.Setenv("SLA_DEFAULT_PLAN", "standard")

	_, err := Load()
	require.Error(t, err)
}

package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func TestDayKey_ConvertsToReferenceZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:30 UTC is 22:30 or 23:30 the previous day in New York.
	utcMorning := time.Date(2026, 7, 2, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-07-01", DayKey(utcMorning, ny))
	assert.Equal(t, "2026-07-02", DayKey(utcMorning, time.UTC))
}

func TestDayKey_StableWithinDay(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 7, 2, 0, 0, 0, 0, loc)
	end := time.Date(2026, 7, 2, 23, 59, 59, 0, loc)
	assert.Equal(t, DayKey(start, loc), DayKey(end, loc))
}

func TestEffectiveCount(t *testing.T) {
	q := model.QuotaRecord{DailyAcceptCount: 12, QuotaDate: "2026-07-01"}

	assert.Equal(t, 12, EffectiveCount(q, "2026-07-01"))
	assert.Zero(t, EffectiveCount(q, "2026-07-02"), "stale record counts as zero")
	assert.Zero(t, EffectiveCount(model.QuotaRecord{}, "2026-07-02"))
}

package triage

import (
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
)

// DefaultDailyLimit is the number of accepts allowed per calendar day.
// Rejects never count against or toward it.
const DefaultDailyLimit = 25

// DayKey returns the ISO calendar day of t in the reference timezone.
// The quota day boundary is computed in one fixed zone for all users;
// it deliberately ignores the user's local timezone.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// EffectiveCount returns the accept count that applies to the given day.
// A stored record from a previous day counts as zero without being
// rewritten; the stored history only changes on the next decision.
func EffectiveCount(q model.QuotaRecord, today string) int {
	if q.QuotaDate != today {
		return 0
	}
	return q.DailyAcceptCount
}

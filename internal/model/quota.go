package model

// QuotaRecord tracks the per-user daily accept quota. One record exists
// per user; a new calendar day resets the effective count to zero without
// rewriting stored history until the next decision lands.
type QuotaRecord struct {
	UserID           string `json:"user_id"`
	DailyAcceptCount int    `json:"daily_accept_count"`

	// QuotaDate is the ISO calendar day (in the configured reference
	// timezone) the count applies to.
	QuotaDate string `json:"quota_date"`

	HasSeenFollowupPrompt bool `json:"has_seen_followup_prompt"`

	// Bootstrapped is set on the first-ever accept so the one-time
	// downstream setup hook never refires, even across undo/redo.
	Bootstrapped bool `json:"bootstrapped"`

	Version int `json:"version"`
}

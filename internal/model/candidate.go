package model

import "time"

// CandidateStatus represents the triage state of a candidate company.
type CandidateStatus string

const (
	StatusPending  CandidateStatus = "pending"
	StatusAccepted CandidateStatus = "accepted"
	StatusRejected CandidateStatus = "rejected"
	StatusArchived CandidateStatus = "archived"
)

// Candidate is a company under triage. The ID is assigned by the
// enrichment provider and is stable, so it doubles as the dedup key.
type Candidate struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Name    string `json:"name"`
	Domain  string `json:"domain,omitempty"`
	Website string `json:"website,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`

	// Scoring attributes. Empty string means unknown; unknown never
	// contributes positively to the fit score.
	Industry          string `json:"industry,omitempty"`
	Location          string `json:"location,omitempty"`
	EmployeeSizeRange string `json:"employee_size_range,omitempty"`
	RevenueRange      string `json:"revenue_range,omitempty"`

	Status    CandidateStatus `json:"status"`
	FitScore  int             `json:"fit_score"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`

	// Version is the optimistic-concurrency token; decision writes are
	// conditional on it so a retried or concurrent decide cannot clobber
	// a newer state.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

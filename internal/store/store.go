// Package store persists profiles, candidates, quota records, and
// enrichment records behind a driver-agnostic interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrVersionConflict is returned when a conditional write finds a
	// version other than the one the caller read. Recoverable: reload
	// and retry.
	ErrVersionConflict = eris.New("store: version conflict")
)

// Store is the persistence interface. Implementations back the triage
// queue, the rescoring pass, and the enrichment cache; the conditional
// (versioned) writes make decide and enrichment puts safe under retried
// or concurrent calls.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, userID string) (*model.ICPProfile, error)
	SaveProfile(ctx context.Context, profile model.ICPProfile) error

	// Candidates
	UpsertCandidates(ctx context.Context, userID string, candidates []model.Candidate) (int64, error)
	GetCandidate(ctx context.Context, userID, id string) (*model.Candidate, error)
	// ListCandidates returns candidates ordered by fit score descending,
	// creation order on ties. An empty status lists all.
	ListCandidates(ctx context.Context, userID string, status model.CandidateStatus) ([]model.Candidate, error)
	// UpdateScores applies a rescoring pass in a single transaction.
	UpdateScores(ctx context.Context, userID string, updates []icp.ScoreUpdate) error
	// SetArchived moves an accepted candidate to archived (or back).
	SetArchived(ctx context.Context, userID, id string, archived bool) error

	// Decisions: candidate + quota written in one transaction,
	// conditional on the versions the arguments carry.
	RecordDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error
	RevertDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error

	// Quota. The followup-prompt and bootstrap flags travel on the quota
	// record and are written through RecordDecision.
	GetQuota(ctx context.Context, userID string) (*model.QuotaRecord, error)

	// Enrichment. GetEnrichment returns (nil, nil) when absent;
	// PutEnrichment only applies strictly newer fetches.
	GetEnrichment(ctx context.Context, userID, entityID string) (*model.EnrichmentRecord, error)
	PutEnrichment(ctx context.Context, record model.EnrichmentRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

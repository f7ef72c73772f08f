package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedCandidates(t *testing.T, s *SQLiteStore, userID string, cands ...model.Candidate) {
	t.Helper()
	n, err := s.UpsertCandidates(context.Background(), userID, cands)
	require.NoError(t, err)
	require.Equal(t, int64(len(cands)), n)
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	p := model.ICPProfile{
		UserID:            "u1",
		Industries:        []string{"Software", "Fintech"},
		Locations:         []string{"CA", "NY"},
		CompanySizeRanges: []string{"51-200"},
		RevenueRanges:     []string{"$10M-$50M"},
		Weights:           model.Weights{Industry: 40, Location: 30, EmployeeSize: 20, Revenue: 10},
	}
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.Industries, got.Industries)
	assert.Equal(t, p.Weights, got.Weights)

	// Save again replaces.
	p.IsNationwide = true
	require.NoError(t, s.SaveProfile(ctx, p))
	got, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.IsNationwide)
}

func TestUpsertCandidates_IgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertCandidates(ctx, "u1", []model.Candidate{
		{ID: "c1", Name: "Acme", FitScore: 80},
		{ID: "c2", Name: "Beta", FitScore: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-upserting an existing id does not touch the stored row.
	n, err = s.UpsertCandidates(ctx, "u1", []model.Candidate{
		{ID: "c1", Name: "Acme Renamed", FitScore: 5},
		{ID: "c3", Name: "Gamma"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, 80, got.FitScore)
	assert.Equal(t, 1, got.Version)
}

func TestListCandidates_OrderAndStatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1",
		model.Candidate{ID: "low", FitScore: 10},
		model.Candidate{ID: "high", FitScore: 90},
		model.Candidate{ID: "mid", FitScore: 50},
	)

	pending, err := s.ListCandidates(ctx, "u1", model.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "high", pending[0].ID)
	assert.Equal(t, "mid", pending[1].ID)
	assert.Equal(t, "low", pending[2].ID)

	all, err := s.ListCandidates(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	accepted, err := s.ListCandidates(ctx, "u1", model.StatusAccepted)
	require.NoError(t, err)
	assert.Empty(t, accepted)

	// Other users are invisible.
	other, err := s.ListCandidates(ctx, "u2", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1",
		model.Candidate{ID: "c1", FitScore: 10},
		model.Candidate{ID: "c2", FitScore: 20},
	)

	err := s.UpdateScores(ctx, "u1", []icp.ScoreUpdate{
		{CandidateID: "c1", FitScore: 77},
		{CandidateID: "c2", FitScore: 33},
	})
	require.NoError(t, err)

	got, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 77, got.FitScore)
}

func TestRecordDecision_TransactionAndVersionCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1", model.Candidate{ID: "c1", FitScore: 80})

	quota, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, quota.Version)

	decidedAt := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	cand, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	cand.Status = model.StatusAccepted
	cand.DecidedAt = &decidedAt

	q := *quota
	q.DailyAcceptCount = 1
	q.QuotaDate = "2026-03-10"
	q.Bootstrapped = true

	require.NoError(t, s.RecordDecision(ctx, *cand, q))

	got, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.DecidedAt)

	storedQuota, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, storedQuota.DailyAcceptCount)
	assert.True(t, storedQuota.Bootstrapped)
	assert.Equal(t, 2, storedQuota.Version)

	// Replaying the same decision with the stale version fails and the
	// quota update rolls back with it.
	err = s.RecordDecision(ctx, *cand, q)
	assert.ErrorIs(t, err, ErrVersionConflict)

	storedQuota, err = s.GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, storedQuota.DailyAcceptCount)
	assert.Equal(t, 2, storedQuota.Version)
}

func TestRevertDecision_RestoresPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1", model.Candidate{ID: "c1"})

	quota, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)

	decidedAt := time.Now().UTC()
	cand, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	cand.Status = model.StatusRejected
	cand.DecidedAt = &decidedAt
	require.NoError(t, s.RecordDecision(ctx, *cand, *quota))

	// Revert with the post-decision versions.
	cand, err = s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	quota, err = s.GetQuota(ctx, "u1")
	require.NoError(t, err)

	cand.Status = model.StatusPending
	cand.DecidedAt = nil
	require.NoError(t, s.RevertDecision(ctx, *cand, *quota))

	got, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.DecidedAt)
	assert.Equal(t, 3, got.Version)
}

func TestRevertDecision_RequiresDecidedStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1", model.Candidate{ID: "c1"})

	quota, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)

	cand, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	cand.Status = model.StatusPending

	// The candidate was never decided; revert must not apply.
	err = s.RevertDecision(ctx, *cand, *quota)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestGetQuota_CreatesOnFirstRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q, err := s.GetQuota(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, "brand-new", q.UserID)
	assert.Zero(t, q.DailyAcceptCount)
	assert.Empty(t, q.QuotaDate)
	assert.False(t, q.Bootstrapped)
	assert.Equal(t, 1, q.Version)

	// Idempotent.
	again, err := s.GetQuota(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, q, again)
}

func TestRecordDecision_PersistsFollowupPromptFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1",
		model.Candidate{ID: "c1", FitScore: 90},
		model.Candidate{ID: "c2", FitScore: 50},
	)

	quota, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)

	cand, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	cand.Status = model.StatusAccepted
	quota.DailyAcceptCount = 1
	quota.QuotaDate = "2026-03-10"
	quota.Bootstrapped = true
	quota.HasSeenFollowupPrompt = true
	require.NoError(t, s.RecordDecision(ctx, *cand, *quota))

	got, err := s.GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.HasSeenFollowupPrompt)
	assert.True(t, got.Bootstrapped)
	assert.Equal(t, quota.Version+1, got.Version)

	// The flag rides the decision's version bump, so the next decision
	// carrying the reloaded quota still applies.
	cand2, err := s.GetCandidate(ctx, "u1", "c2")
	require.NoError(t, err)
	cand2.Status = model.StatusAccepted
	got.DailyAcceptCount = 2
	require.NoError(t, s.RecordDecision(ctx, *cand2, *got))
}

func TestSetArchived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCandidates(t, s, "u1", model.Candidate{ID: "c1", Status: model.StatusAccepted})

	require.NoError(t, s.SetArchived(ctx, "u1", "c1", true))
	got, err := s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, got.Status)

	// Archiving an already-archived candidate is a mismatch.
	assert.ErrorIs(t, s.SetArchived(ctx, "u1", "c1", true), ErrNotFound)

	require.NoError(t, s.SetArchived(ctx, "u1", "c1", false))
	got, err = s.GetCandidate(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestEnrichment_RoundTripAndStalenessGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetEnrichment(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent record is (nil, nil)")

	fetchedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := model.EnrichmentRecord{
		EntityID:  "e1",
		UserID:    "u1",
		Payload:   json.RawMessage(`{"name":"Acme"}`),
		SourceID:  "src-1",
		FetchedAt: fetchedAt,
	}
	require.NoError(t, s.PutEnrichment(ctx, rec))

	got, err = s.GetEnrichment(ctx, "u1", "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "src-1", got.SourceID)
	assert.JSONEq(t, `{"name":"Acme"}`, string(got.Payload))
	assert.Equal(t, 1, got.Version)

	// An older fetch cannot overwrite.
	older := rec
	older.Version = got.Version
	older.Payload = json.RawMessage(`{"name":"Stale"}`)
	older.FetchedAt = fetchedAt.Add(-time.Hour)
	assert.ErrorIs(t, s.PutEnrichment(ctx, older), ErrVersionConflict)

	// A newer fetch with the right version applies and bumps it.
	newer := rec
	newer.Version = got.Version
	newer.Payload = json.RawMessage(`{"name":"Acme","employees":120}`)
	newer.FetchedAt = fetchedAt.Add(time.Hour)
	require.NoError(t, s.PutEnrichment(ctx, newer))

	got, err = s.GetEnrichment(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.JSONEq(t, `{"name":"Acme","employees":120}`, string(got.Payload))

	// A stale version token is refused even with a newer timestamp.
	conflicted := newer
	conflicted.Version = 1
	conflicted.FetchedAt = fetchedAt.Add(2 * time.Hour)
	assert.ErrorIs(t, s.PutEnrichment(ctx, conflicted), ErrVersionConflict)
}

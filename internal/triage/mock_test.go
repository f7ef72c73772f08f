package triage

import (
	"context"
	"errors"
	"sort"

	"github.com/sells-group/prospect-cli/internal/model"
)

var errStaleVersion = errors.New("version conflict")

// mockStore implements Store with in-memory state for testing.
type mockStore struct {
	candidates map[string]model.Candidate
	quota      model.QuotaRecord

	decisionErr error
	revertErr   error
	upsertErr   error

	decisionCalls int
	revertCalls   int
	upsertCalls   int
}

func newMockStore(userID string, candidates ...model.Candidate) *mockStore {
	m := &mockStore{
		candidates: make(map[string]model.Candidate),
		quota:      model.QuotaRecord{UserID: userID, Version: 1},
	}
	for _, c := range candidates {
		if c.Status == "" {
			c.Status = model.StatusPending
		}
		if c.Version == 0 {
			c.Version = 1
		}
		c.UserID = userID
		m.candidates[c.ID] = c
	}
	return m
}

func (m *mockStore) ListCandidates(_ context.Context, _ string, status model.CandidateStatus) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, c := range m.candidates {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FitScore != out[j].FitScore {
			return out[i].FitScore > out[j].FitScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockStore) GetQuota(_ context.Context, _ string) (*model.QuotaRecord, error) {
	q := m.quota
	return &q, nil
}

func (m *mockStore) UpsertCandidates(_ context.Context, _ string, candidates []model.Candidate) (int64, error) {
	m.upsertCalls++
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	var inserted int64
	for _, c := range candidates {
		if _, ok := m.candidates[c.ID]; ok {
			continue
		}
		if c.Version == 0 {
			c.Version = 1
		}
		m.candidates[c.ID] = c
		inserted++
	}
	return inserted, nil
}

func (m *mockStore) RecordDecision(_ context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	m.decisionCalls++
	if m.decisionErr != nil {
		return m.decisionErr
	}
	return m.apply(candidate, quota)
}

func (m *mockStore) RevertDecision(_ context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	m.revertCalls++
	if m.revertErr != nil {
		return m.revertErr
	}
	return m.apply(candidate, quota)
}

// apply mirrors the real stores' conditional writes: both rows must
// carry the version currently stored or nothing changes.
func (m *mockStore) apply(candidate model.Candidate, quota model.QuotaRecord) error {
	if stored, ok := m.candidates[candidate.ID]; ok && stored.Version != candidate.Version {
		return errStaleVersion
	}
	if quota.Version != m.quota.Version {
		return errStaleVersion
	}
	candidate.Version++
	m.candidates[candidate.ID] = candidate
	quota.Version++
	m.quota = quota
	return nil
}

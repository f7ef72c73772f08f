package icp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

// mockStore implements Store for testing.
type mockStore struct {
	candidates []model.Candidate
	listErr    error
	updateErr  error

	listCalls    int
	listedStatus model.CandidateStatus
	updates      []ScoreUpdate
	updateCalls  int
}

func (m *mockStore) ListCandidates(_ context.Context, _ string, status model.CandidateStatus) ([]model.Candidate, error) {
	m.listCalls++
	m.listedStatus = status
	return m.candidates, m.listErr
}

func (m *mockStore) UpdateScores(_ context.Context, _ string, updates []ScoreUpdate) error {
	m.updateCalls++
	m.updates = updates
	return m.updateErr
}

func TestRescorer_RecomputesEveryCandidate(t *testing.T) {
	st := &mockStore{candidates: []model.Candidate{
		{ID: "c1", Industry: "Software", Location: "CA", EmployeeSizeRange: "51-200", RevenueRange: "$50M-$100M"},
		{ID: "c2", Industry: "Construction"},
		{ID: "c3", Industry: "Software", Status: model.StatusAccepted},
	}}

	n, err := NewRescorer(st).Run(context.Background(), "u1", baseProfile())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// All statuses are listed, not just pending.
	assert.Equal(t, model.CandidateStatus(""), st.listedStatus)

	require.Len(t, st.updates, 3)
	byID := map[string]int{}
	for _, u := range st.updates {
		byID[u.CandidateID] = u.FitScore
	}
	assert.Equal(t, 100, byID["c1"])
	assert.Equal(t, 0, byID["c2"])
	assert.Equal(t, 50, byID["c3"])
}

func TestRescorer_InvalidWeightsBlockBeforeAnyIO(t *testing.T) {
	st := &mockStore{candidates: []model.Candidate{{ID: "c1"}}}

	p := baseProfile()
	p.Weights.Revenue = 30 // sums to 120

	_, err := NewRescorer(st).Run(context.Background(), "u1", p)
	require.ErrorIs(t, err, model.ErrInvalidWeights)
	assert.Zero(t, st.listCalls)
	assert.Zero(t, st.updateCalls)
}

func TestRescorer_EmptyCandidateSet(t *testing.T) {
	st := &mockStore{}

	n, err := NewRescorer(st).Run(context.Background(), "u1", baseProfile())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, st.updateCalls, "no write for an empty set")
}

func TestRescorer_PersistFailurePropagates(t *testing.T) {
	st := &mockStore{
		candidates: []model.Candidate{{ID: "c1"}},
		updateErr:  errors.New("tx aborted"),
	}

	_, err := NewRescorer(st).Run(context.Background(), "u1", baseProfile())
	assert.ErrorContains(t, err, "tx aborted")
}

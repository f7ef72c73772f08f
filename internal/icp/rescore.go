package icp

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Store is the persistence surface the rescoring pass needs.
type Store interface {
	ListCandidates(ctx context.Context, userID string, status model.CandidateStatus) ([]model.Candidate, error)
	UpdateScores(ctx context.Context, userID string, updates []ScoreUpdate) error
}

// ScoreUpdate is one candidate's recomputed fit score.
type ScoreUpdate struct {
	CandidateID string
	FitScore    int
}

// Rescorer re-applies a profile to every stored candidate. The write is
// a single transaction, so a reported success means no candidate is left
// visible with a score from the old weight set.
type Rescorer struct {
	store  Store
	shards int
}

// NewRescorer creates a rescoring pass runner.
func NewRescorer(store Store) *Rescorer {
	return &Rescorer{store: store, shards: runtime.GOMAXPROCS(0)}
}

// Run recomputes fitScore for all of the user's candidates under the
// given profile and persists the updates atomically. Returns the number
// of candidates rescored. Invalid weights block the pass before any read
// or write.
func (r *Rescorer) Run(ctx context.Context, userID string, profile model.ICPProfile) (int, error) {
	if err := model.ValidateWeights(profile.Weights); err != nil {
		return 0, err
	}

	// Status "" lists every candidate regardless of triage state;
	// archived candidates keep current scores too.
	candidates, err := r.store.ListCandidates(ctx, userID, "")
	if err != nil {
		return 0, eris.Wrap(err, "icp: list candidates for rescore")
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	updates := make([]ScoreUpdate, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	shards := r.shards
	if shards < 1 {
		shards = 1
	}
	for s := 0; s < shards; s++ {
		s := s
		g.Go(func() error {
			for i := s; i < len(candidates); i += shards {
				if err := ctx.Err(); err != nil {
					return err
				}
				updates[i] = ScoreUpdate{
					CandidateID: candidates[i].ID,
					FitScore:    Score(candidates[i], profile),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, eris.Wrap(err, "icp: compute scores")
	}

	if err := r.store.UpdateScores(ctx, userID, updates); err != nil {
		return 0, eris.Wrap(err, "icp: persist rescored candidates")
	}

	zap.L().Info("rescoring pass complete",
		zap.String("user_id", userID),
		zap.Int("candidates", len(updates)),
	)
	return len(updates), nil
}

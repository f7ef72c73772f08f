// Package triage implements the swipe queue: one pending candidate at a
// time, quota-limited accept/reject decisions, and a single undo slot.
package triage

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Store is the persistence surface the queue needs. RecordDecision and
// RevertDecision write the candidate and quota record in one
// transaction, conditional on the versions carried by the arguments.
type Store interface {
	ListCandidates(ctx context.Context, userID string, status model.CandidateStatus) ([]model.Candidate, error)
	GetQuota(ctx context.Context, userID string) (*model.QuotaRecord, error)
	UpsertCandidates(ctx context.Context, userID string, candidates []model.Candidate) (int64, error)
	RecordDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error
	RevertDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error
}

// Direction is the user's swipe decision.
type Direction string

const (
	DirectionAccept Direction = "accept"
	DirectionReject Direction = "reject"
)

// State describes what the queue can present.
type State string

const (
	// StateIdle means the queue has never held a candidate.
	StateIdle State = "idle"
	// StatePresenting means a pending candidate is available to decide.
	StatePresenting State = "presenting"
	// StateExhausted means every known candidate has been decided; a
	// refill with new candidates returns the queue to presenting.
	StateExhausted State = "exhausted"
)

var (
	// ErrQuotaExceeded is returned when an accept is attempted past the
	// daily limit. The caller should stop presenting accepts and direct
	// the user to review already-accepted candidates. Recoverable: the
	// limit resets on the next quota day.
	ErrQuotaExceeded = eris.New("triage: daily accept quota exceeded")

	// ErrNoCandidate is returned by Decide when nothing is presented.
	ErrNoCandidate = eris.New("triage: no candidate presented")
)

// FirstAcceptHook runs exactly once, after the user's first-ever accept
// is persisted. It must not refire on undo-then-redo; the queue records
// the firing on the quota record inside the decision transaction, so the
// hook itself must not write to the store (a write behind the queue's
// back would desync the quota version it carries).
type FirstAcceptHook func(ctx context.Context, c model.Candidate)

// undoSlot captures everything needed to revert the last decision.
type undoSlot struct {
	candidate     model.Candidate // post-decision snapshot (carries bumped version)
	prevDecidedAt *time.Time
	prevQuota     model.QuotaRecord
	cursor        int
}

// Queue presents pending candidates ordered by fit score and applies
// decisions. It is not safe for concurrent use; callers that share a
// queue across requests must serialize access (see the serve command).
type Queue struct {
	store Store

	userID     string
	dailyLimit int
	loc        *time.Location
	now        func() time.Time
	onFirst    FirstAcceptHook

	items   []model.Candidate // pending only, sorted
	seen    map[string]int    // candidate id -> insertion sequence
	nextSeq int
	cursor  int
	quota   model.QuotaRecord
	undo    *undoSlot
}

// Option configures a Queue.
type Option func(*Queue)

// WithDailyLimit overrides the accept limit.
func WithDailyLimit(n int) Option {
	return func(q *Queue) { q.dailyLimit = n }
}

// WithLocation sets the reference timezone for the quota day boundary.
func WithLocation(loc *time.Location) Option {
	return func(q *Queue) { q.loc = loc }
}

// WithNow sets a fixed clock for testing.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithFirstAcceptHook registers the one-time bootstrap hook.
func WithFirstAcceptHook(h FirstAcceptHook) Option {
	return func(q *Queue) { q.onFirst = h }
}

// Load builds a queue from the store: all pending candidates sorted by
// fit score descending plus the user's quota record.
func Load(ctx context.Context, store Store, userID string, opts ...Option) (*Queue, error) {
	q := &Queue{
		store:      store,
		userID:     userID,
		dailyLimit: DefaultDailyLimit,
		loc:        time.UTC,
		now:        time.Now,
		seen:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(q)
	}

	quota, err := store.GetQuota(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "triage: load quota")
	}
	q.quota = *quota

	pending, err := store.ListCandidates(ctx, userID, model.StatusPending)
	if err != nil {
		return nil, eris.Wrap(err, "triage: load pending candidates")
	}
	for _, c := range pending {
		q.seen[c.ID] = q.nextSeq
		q.nextSeq++
	}
	q.items = pending
	q.sortPending()
	return q, nil
}

// State reports the queue's current presentation state.
func (q *Queue) State() State {
	switch {
	case len(q.seen) == 0:
		return StateIdle
	case q.cursor >= len(q.items):
		return StateExhausted
	default:
		return StatePresenting
	}
}

// Current returns the presented candidate, or false when Idle/Exhausted.
func (q *Queue) Current() (model.Candidate, bool) {
	if q.cursor >= len(q.items) {
		return model.Candidate{}, false
	}
	return q.items[q.cursor], true
}

// Quota returns the in-memory quota record.
func (q *Queue) Quota() model.QuotaRecord {
	return q.quota
}

// Remaining returns how many accepts are left today.
func (q *Queue) Remaining() int {
	left := q.dailyLimit - EffectiveCount(q.quota, DayKey(q.now(), q.loc))
	if left < 0 {
		return 0
	}
	return left
}

// Decide applies an accept or reject to the presented candidate.
// The candidate status and quota record are persisted in a single
// transaction before any in-memory state changes, so a persistence
// failure leaves the presented candidate unchanged and retryable.
func (q *Queue) Decide(ctx context.Context, dir Direction) error {
	cur, ok := q.Current()
	if !ok {
		return ErrNoCandidate
	}

	today := DayKey(q.now(), q.loc)
	if dir == DirectionAccept && EffectiveCount(q.quota, today) >= q.dailyLimit {
		return ErrQuotaExceeded
	}

	decidedAt := q.now()
	cand := cur
	cand.DecidedAt = &decidedAt
	switch dir {
	case DirectionAccept:
		cand.Status = model.StatusAccepted
	case DirectionReject:
		cand.Status = model.StatusRejected
	default:
		return eris.Errorf("triage: unknown direction %q", dir)
	}

	prevQuota := q.quota
	quota := q.quota
	firstAccept := false
	if dir == DirectionAccept {
		if quota.QuotaDate != today {
			quota.DailyAcceptCount = 1
		} else {
			quota.DailyAcceptCount++
		}
		quota.QuotaDate = today
		if !quota.Bootstrapped {
			quota.Bootstrapped = true
			quota.HasSeenFollowupPrompt = true
			firstAccept = true
		}
	}

	if err := q.store.RecordDecision(ctx, cand, quota); err != nil {
		return eris.Wrapf(err, "triage: persist %s decision for %s", dir, cand.ID)
	}

	// Persisted; now commit to memory. The conditional write bumped both
	// versions, mirror that here.
	cand.Version++
	quota.Version++
	q.undo = &undoSlot{
		candidate:     cand,
		prevDecidedAt: cur.DecidedAt,
		prevQuota:     prevQuota,
		cursor:        q.cursor,
	}
	q.items = append(q.items[:q.cursor], q.items[q.cursor+1:]...)
	q.quota = quota

	if firstAccept && q.onFirst != nil {
		q.onFirst(ctx, cand)
	}

	zap.L().Debug("triage decision",
		zap.String("candidate", cand.ID),
		zap.String("direction", string(dir)),
		zap.Int("daily_accepts", quota.DailyAcceptCount),
	)
	return nil
}

// Undo reverts the last decision: candidate back to pending with
// decidedAt cleared, quota values restored verbatim, cursor back on that
// candidate. With an empty slot it is a silent no-op. Only one level of
// undo exists; a successful Undo clears the slot.
func (q *Queue) Undo(ctx context.Context) error {
	if q.undo == nil {
		return nil
	}
	slot := q.undo

	cand := slot.candidate
	cand.Status = model.StatusPending
	cand.DecidedAt = slot.prevDecidedAt

	// Quota count and date are restored verbatim, not recomputed. The
	// bootstrapped and followup-prompt flags survive undo: the one-time
	// hook must not refire on redo.
	quota := q.quota
	quota.DailyAcceptCount = slot.prevQuota.DailyAcceptCount
	quota.QuotaDate = slot.prevQuota.QuotaDate

	if err := q.store.RevertDecision(ctx, cand, quota); err != nil {
		return eris.Wrapf(err, "triage: undo decision for %s", cand.ID)
	}

	cand.Version++
	quota.Version++
	if slot.cursor > len(q.items) {
		slot.cursor = len(q.items)
	}
	q.items = append(q.items[:slot.cursor], append([]model.Candidate{cand}, q.items[slot.cursor:]...)...)
	q.cursor = slot.cursor
	q.quota = quota
	q.undo = nil
	return nil
}

// Refill persists and appends candidates the queue has not seen (dedup
// by provider id), re-sorts the pending set by fit score descending with
// ties broken by insertion order, and resets the cursor to the top only
// if the queue was exhausted. A persistence failure leaves the queue
// untouched. Returns the number of new candidates added.
func (q *Queue) Refill(ctx context.Context, candidates []model.Candidate) (int, error) {
	var fresh []model.Candidate
	for _, c := range candidates {
		if _, dup := q.seen[c.ID]; dup {
			continue
		}
		c.UserID = q.userID
		c.Status = model.StatusPending
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if _, err := q.store.UpsertCandidates(ctx, q.userID, fresh); err != nil {
		return 0, eris.Wrap(err, "triage: persist refill")
	}

	wasExhausted := q.State() != StatePresenting
	var currentID string
	if cur, ok := q.Current(); ok {
		currentID = cur.ID
	}

	for _, c := range fresh {
		q.seen[c.ID] = q.nextSeq
		q.nextSeq++
	}
	q.items = append(q.items, fresh...)
	q.sortPending()

	if wasExhausted {
		q.cursor = 0
	} else {
		// Keep presenting the same candidate even if the sort moved it.
		for i, c := range q.items {
			if c.ID == currentID {
				q.cursor = i
				break
			}
		}
	}
	return len(fresh), nil
}

// sortPending orders by fit score descending, insertion order on ties.
func (q *Queue) sortPending() {
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].FitScore != q.items[j].FitScore {
			return q.items[i].FitScore > q.items[j].FitScore
		}
		return q.seen[q.items[i].ID] < q.seen[q.items[j].ID]
	})
}

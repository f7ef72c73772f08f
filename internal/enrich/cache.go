// Package enrich serves third-party enrichment data through a
// staleness-windowed cache, degrading to stored or partial data when the
// provider fails rather than surfacing hard errors.
package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

// EntityKind distinguishes company and contact enrichment.
type EntityKind string

const (
	KindCompany EntityKind = "company"
	KindContact EntityKind = "contact"
)

// EntityRef identifies an entity to enrich. SourceID, when known, lets
// the provider re-request the same entity without re-resolving identity
// from name/domain.
type EntityRef struct {
	ID       string
	Kind     EntityKind
	Name     string
	Domain   string
	SourceID string
}

// ProviderResult is a successful provider fetch.
type ProviderResult struct {
	SourceID string
	Payload  json.RawMessage
}

// Provider is the external enrichment API. Timeouts are the adapter's
// responsibility; they surface here as ordinary errors.
type Provider interface {
	Enrich(ctx context.Context, ref EntityRef) (*ProviderResult, error)
}

// TextDrafter consumes enriched data to draft outreach text. It is an
// external collaborator; this package only guarantees the data handed to
// it is within the staleness window or flagged degraded.
type TextDrafter interface {
	Draft(ctx context.Context, candidate model.Candidate, enrichment model.EnrichmentRecord) (string, error)
}

// Outcome classifies how a Get was served.
type Outcome string

const (
	// OutcomeCached: stored record within the staleness window, no
	// provider call.
	OutcomeCached Outcome = "cached"
	// OutcomeFresh: fetched from the provider and persisted.
	OutcomeFresh Outcome = "fresh"
	// OutcomeStaleFallback: fetch failed, prior record served unchanged.
	OutcomeStaleFallback Outcome = "stale_fallback"
	// OutcomeColdFallback: fetch failed with no prior record; a minimal
	// record built from locally-known fields, no payload.
	OutcomeColdFallback Outcome = "cold_fallback"
)

// Result is the three-outcome (plus cache hit) response callers pattern
// match on. Degraded marks data served from a failed-refresh fallback.
type Result struct {
	Record   model.EnrichmentRecord
	Outcome  Outcome
	Degraded bool
}

// Store is the persistence surface the cache needs. GetEnrichment
// returns (nil, nil) when no record exists; PutEnrichment only applies
// writes with a strictly newer FetchedAt.
type Store interface {
	GetEnrichment(ctx context.Context, userID, entityID string) (*model.EnrichmentRecord, error)
	PutEnrichment(ctx context.Context, record model.EnrichmentRecord) error
}

// Cache wraps a Provider with store-backed reuse. Concurrent Gets for
// the same entity are not deduplicated; each computes independently and
// the strictly-newer write condition keeps the stored record monotonic.
type Cache struct {
	store    Store
	provider Provider
	now      func() time.Time
}

// NewCache creates an enrichment cache.
func NewCache(store Store, provider Provider) *Cache {
	return &Cache{store: store, provider: provider, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get serves enrichment data for the entity, fetching at most once.
// Within the staleness window the stored record is returned untouched.
// Past it, a fetch is attempted; on failure the prior record (or a
// minimal cold record) is returned with Degraded set instead of an
// error. Only store failures surface as errors.
func (c *Cache) Get(ctx context.Context, userID string, ref EntityRef, staleness time.Duration) (*Result, error) {
	prior, err := c.store.GetEnrichment(ctx, userID, ref.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load record for %s", ref.ID)
	}

	now := c.now()
	if prior != nil && now.Sub(prior.FetchedAt) < staleness {
		return &Result{Record: *prior, Outcome: OutcomeCached}, nil
	}

	if prior != nil && prior.SourceID != "" {
		ref.SourceID = prior.SourceID
	}

	fetched, fetchErr := c.provider.Enrich(ctx, ref)
	if fetchErr != nil {
		zap.L().Warn("enrichment fetch failed, serving degraded",
			zap.String("entity", ref.ID),
			zap.Error(fetchErr),
		)
		if prior != nil {
			return &Result{Record: *prior, Outcome: OutcomeStaleFallback, Degraded: true}, nil
		}
		return &Result{
			Record: model.EnrichmentRecord{
				EntityID: ref.ID,
				UserID:   userID,
				SourceID: ref.SourceID,
			},
			Outcome:  OutcomeColdFallback,
			Degraded: true,
		}, nil
	}

	record := model.EnrichmentRecord{
		EntityID:  ref.ID,
		UserID:    userID,
		Payload:   fetched.Payload,
		SourceID:  fetched.SourceID,
		FetchedAt: now,
	}
	if record.SourceID == "" {
		record.SourceID = ref.SourceID
	}
	if prior != nil {
		record.Version = prior.Version
	}

	if err := c.store.PutEnrichment(ctx, record); err != nil {
		return nil, eris.Wrapf(err, "enrich: persist record for %s", ref.ID)
	}
	record.Version++

	return &Result{Record: record, Outcome: OutcomeFresh}, nil
}

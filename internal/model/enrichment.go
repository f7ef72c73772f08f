package model

import (
	"encoding/json"
	"time"
)

// EnrichmentRecord caches third-party data for an entity (company or
// contact). The payload is only ever replaced by a strictly newer fetch;
// a failed fetch never overwrites a previously successful payload, and
// records are never deleted automatically.
type EnrichmentRecord struct {
	EntityID string          `json:"entity_id"`
	UserID   string          `json:"user_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`

	// SourceID is the provider's identity for this entity. Once learned
	// it is persisted so refreshes re-request deterministically instead
	// of re-resolving identity from name/domain.
	SourceID  string    `json:"source_id,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`

	Version int `json:"version"`
}

// Package types provides common types shared across the credit ledger.
package types

import "time"

// Entity is the base type for persisted records with timestamps.
// Embed this in domain types to get automatic timestamp handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewEntity creates a new Entity stamped with the given instant.
// A zero instant stamps the current time.
func NewEntity(at time.Time) Entity {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return Entity{
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

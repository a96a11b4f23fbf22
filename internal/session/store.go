// Package session owns conversation state: where lead profiles live between
// messages, and the Engine that drives a conversation turn.
package session

import (
	"context"
	"errors"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// ErrNotFound is returned for session ids with no stored profile.
var ErrNotFound = errors.New("session not found")

// Store holds one profile per session id. Implementations return copies;
// callers never share memory with stored profiles.
type Store interface {
	// Create stores a fresh NEW profile for id, replacing any existing one.
	Create(ctx context.Context, id string) (lead.Profile, error)
	Get(ctx context.Context, id string) (lead.Profile, error)
	Put(ctx context.Context, p lead.Profile) error
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

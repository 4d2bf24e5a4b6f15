// Package session manages call sessions: the conversation history and the
// currently bound expert for each active call.
//
// The [Store] interface abstracts where sessions live so the call
// orchestrator can be tested against an in-memory implementation and the
// server can later move to a shared backend without touching callers. The
// [Locker] serialises turns within one session while leaving distinct
// sessions fully concurrent.
package session

import (
	"context"
	"errors"

	"github.com/expertline/expertline/pkg/types"
)

// ErrNotFound is returned when a session ID is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Store persists call sessions.
//
// Implementations must be safe for concurrent use. Returned sessions are
// snapshots; mutating them does not affect the store.
type Store interface {
	// Create registers a new session under the given ID. Creating an ID
	// that already exists resets it.
	Create(ctx context.Context, id string) (*types.Session, error)

	// Get returns a snapshot of the session, or [ErrNotFound].
	Get(ctx context.Context, id string) (*types.Session, error)

	// SetExpert binds the session to an expert persona. Passing nil
	// clears the binding.
	SetExpert(ctx context.Context, id string, expert *types.Expert) error

	// AppendMessage appends a message to the session history.
	AppendMessage(ctx context.Context, id string, msg types.Message) error

	// Delete removes the session and reports whether it existed. Deleting
	// an unknown ID is not an error.
	Delete(ctx context.Context, id string) (bool, error)
}

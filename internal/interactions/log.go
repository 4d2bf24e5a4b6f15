// Package interactions records completed question/answer exchanges for later
// analysis. Recording is best-effort: the call pipeline fires a save after the
// answer has streamed and never blocks or fails a turn on persistence errors.
package interactions

import "context"

// Interaction is one completed exchange within a call session.
type Interaction struct {
	SessionID    string
	UserQuestion string
	ExpertAnswer string
	ExpertName   string
	UserName     string
}

// Log persists interactions.
//
// Implementations must be safe for concurrent use.
type Log interface {
	// Save records one interaction.
	Save(ctx context.Context, in Interaction) error
}

// Discard is a [Log] that drops everything. Used when no database is
// configured.
type Discard struct{}

var _ Log = Discard{}

// Save implements Log.
func (Discard) Save(context.Context, Interaction) error { return nil }

// Package types defines the shared types used across all Expertline packages.
//
// These types form the lingua franca between the providers, the expert router,
// the session store, and the call orchestrator. They are intentionally minimal:
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Gender is the router's best-effort voice-category classification of an
// expert persona. It only influences which default TTS voice is chosen.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"

	// GenderUnknown is the fallback when the router produces no usable
	// classification. Experts with an unknown gender speak with the global
	// default voice.
	GenderUnknown Gender = "unknown"
)

// ParseGender maps a raw router output string onto a known Gender value.
// Anything outside {male, female, neutral} collapses to GenderUnknown.
func ParseGender(s string) Gender {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale
	case GenderFemale:
		return GenderFemale
	case GenderNeutral:
		return GenderNeutral
	}
	return GenderUnknown
}

// Expert is a simulated persona selected to answer a caller's question.
// An Expert is immutable once bound to a turn; a later turn may bind a
// different Expert to the same session.
type Expert struct {
	// ID is a URL-safe slug derived from the expert's name.
	ID string

	// Name is the expert's full display name (e.g., "Barbara Liskov").
	Name string

	// Title is an optional short description of the expert's position.
	Title string

	// ExpertiseAreas lists the domains this expert is known for, most
	// relevant first. Never empty after routing.
	ExpertiseAreas []string

	// Reasoning is the router's explanation for why this expert was chosen.
	Reasoning string

	// Gender drives default voice selection when VoiceID is empty.
	Gender Gender

	// VoiceID is an optional explicit TTS voice identifier. When set it takes
	// precedence over the gender-keyed defaults.
	VoiceID string
}

// Role identifies the author of a conversation Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleExpert    Role = "expert"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a session's conversation history.
// Messages are appended in strict chronological order and are immutable
// after the turn that created them completes.
type Message struct {
	// ID is a unique message identifier.
	ID string

	// Role identifies the author.
	Role Role

	// Content is the message text.
	Content string

	// Timestamp is when the message was recorded.
	Timestamp time.Time

	// ExpertName is set on expert messages to record which persona spoke.
	ExpertName string
}

// Session is a logical ongoing call binding a caller to a persona and a
// transcript. Sessions are ephemeral: they live in process memory only and
// are deleted when the call ends.
type Session struct {
	// ID is the session identifier, usually a UUID issued at call start.
	ID string

	// Expert is the currently bound persona. Nil until the first turn routes.
	Expert *Expert

	// History is the append-only conversation log, oldest first.
	History []Message

	// CreatedAt is when the session was created.
	CreatedAt time.Time
}

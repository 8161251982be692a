// Package statestore provides in-memory conversation state for result slots.
// State is deliberately not durable: conversations live for one process and
// clear on reset.
package statestore

import (
	"errors"
	"time"

	"github.com/ThomasConway01/OutfitMatcher/types"
)

// ErrNotFound is returned when a conversation doesn't exist in the store.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidID is returned when an empty conversation ID is provided.
var ErrInvalidID = errors.New("invalid conversation ID")

// LastRequest is the retained record of the most recent analysis: the exact
// image bytes and instruction, kept for retry and follow-up chat. It is
// overwritten on each new analysis.
type LastRequest struct {
	ImageBytes []byte
	Prompt     string
	Slot       string
}

// ConversationState is the mutable state of one result slot's conversation.
type ConversationState struct {
	ID             string
	Messages       []types.Message
	LastRequest    *LastRequest
	LastAccessedAt time.Time
}

// Store holds conversation state keyed by conversation ID.
type Store interface {
	// Load retrieves conversation state by ID. Returns ErrNotFound when
	// absent.
	Load(id string) (*ConversationState, error)

	// Save persists conversation state, replacing any prior state with the
	// same ID.
	Save(state *ConversationState) error

	// Delete removes a conversation. Deleting a missing ID is a no-op.
	Delete(id string) error
}

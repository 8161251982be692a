package statestore

import (
	"sync"
	"time"

	"github.com/ThomasConway01/OutfitMatcher/types"
)

// MemoryStore is a thread-safe in-memory Store implementation. It is the only
// implementation shipped: conversation history is in-scope only for the
// lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*ConversationState)}
}

// Load retrieves a conversation state by ID.
// Returns a deep copy to prevent external mutation.
func (s *MemoryStore) Load(id string) (*ConversationState, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.states[id]
	if !exists {
		return nil, ErrNotFound
	}
	return deepCopy(state), nil
}

// Save persists a conversation state, replacing any existing one.
func (s *MemoryStore) Save(state *ConversationState) error {
	if state == nil || state.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := deepCopy(state)
	stateCopy.LastAccessedAt = time.Now()
	s.states[state.ID] = stateCopy
	return nil
}

// Delete removes a conversation state. Missing IDs are ignored.
func (s *MemoryStore) Delete(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}

func deepCopy(state *ConversationState) *ConversationState {
	out := &ConversationState{
		ID:             state.ID,
		LastAccessedAt: state.LastAccessedAt,
	}
	if len(state.Messages) > 0 {
		out.Messages = make([]types.Message, len(state.Messages))
		copy(out.Messages, state.Messages)
	}
	if state.LastRequest != nil {
		lr := *state.LastRequest
		if state.LastRequest.ImageBytes != nil {
			lr.ImageBytes = make([]byte, len(state.LastRequest.ImageBytes))
			copy(lr.ImageBytes, state.LastRequest.ImageBytes)
		}
		out.LastRequest = &lr
	}
	return out
}

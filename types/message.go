// Package types defines the canonical message, content, and result types
// shared by the capture, provider, and session layers.
package types

import (
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // Plain-text content

	// Parts holds multimodal content. When set, it takes precedence over
	// Content for providers that understand content parts.
	Parts []ContentPart `json:"parts,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewUserMessage creates a user message with plain text content.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message with plain text content.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// GetContent returns the textual content of the message. For messages built
// from parts it concatenates all text parts.
func (m *Message) GetContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, part := range m.Parts {
		if part.Type == ContentTypeText && part.Text != nil {
			sb.WriteString(*part.Text)
		}
	}
	if sb.Len() == 0 {
		return m.Content
	}
	return sb.String()
}

// HasMediaContent reports whether the message contains any image parts.
// Returns false for text-only messages even when they use Parts.
func (m *Message) HasMediaContent() bool {
	for _, part := range m.Parts {
		if part.Type == ContentTypeImage && part.Media != nil {
			return true
		}
	}
	return false
}

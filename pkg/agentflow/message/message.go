// Package message defines the envelope exchanged between agents, tools and
// the scheduler.
//
// A Message is immutable once it has been appended to a flow history. Code
// that needs a variation derives a copy with Forward or WithMetadata.
package message

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleAgent     Role = "agent"
)

// Message is the unit of data flowing between nodes.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Content   string         `json:"content,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Schema    string         `json:"schema,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New creates a message with a fresh ID.
func New(role Role, from, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		From:      from,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// User creates a user message, typically the initial input of an execution.
func User(content string) *Message {
	return New(RoleUser, "user", content)
}

// WithPayload returns a copy of m carrying payload and an optional schema reference.
func (m *Message) WithPayload(payload any, schema string) *Message {
	c := m.clone()
	c.Payload = payload
	c.Schema = schema
	return c
}

// WithMetadata returns a copy of m with key set in its metadata.
func (m *Message) WithMetadata(key string, value any) *Message {
	c := m.clone()
	c.Metadata[key] = value
	return c
}

// Forward returns a copy of m addressed from one node to another under a new ID.
// Metadata and payload are carried over; the original ID is kept under
// "forwarded_from".
func (m *Message) Forward(from, to string) *Message {
	c := m.clone()
	c.ID = uuid.NewString()
	c.From = from
	c.To = to
	c.CreatedAt = time.Now()
	c.Metadata["forwarded_from"] = m.ID
	return c
}

// Meta returns a metadata value.
func (m *Message) Meta(key string) (any, bool) {
	if m == nil || m.Metadata == nil {
		return nil, false
	}
	v, ok := m.Metadata[key]
	return v, ok
}

// PayloadMap returns the payload as a map when it is one.
func (m *Message) PayloadMap() (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	p, ok := m.Payload.(map[string]any)
	return p, ok
}

// clone copies m with its own metadata map. Payload is shared; payloads are
// treated as read-only values.
func (m *Message) clone() *Message {
	c := *m
	c.Metadata = make(map[string]any, len(m.Metadata)+1)
	maps.Copy(c.Metadata, m.Metadata)
	return &c
}

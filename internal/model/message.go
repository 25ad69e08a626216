// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole converts a wire role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// =============================================================================
// CONTENT TYPES
// =============================================================================

// ContentKind discriminates the Content union.
type ContentKind int

const (
	KindText ContentKind = iota + 1
	KindImage
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Content is the payload of a message: either Text or Image.
// The set of implementations is closed.
type Content interface {
	Kind() ContentKind
	isContent()
}

// Text is plain message text.
type Text struct {
	Value string
}

// Kind implements Content.
func (Text) Kind() ContentKind { return KindText }
func (Text) isContent()        {}

// Image is a still image with its media type (e.g. "image/png").
type Image struct {
	MediaType string
	Data      []byte
}

// Kind implements Content.
func (Image) Kind() ContentKind { return KindImage }
func (Image) isContent()        {}

// clone returns an Image that shares no memory with img.
func (img Image) clone() Image {
	return Image{MediaType: img.MediaType, Data: bytes.Clone(img.Data)}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation.
// A Message is a value; the content discriminant is fixed at construction.
type Message struct {
	ID        string
	Role      Role
	Content   Content
	CreatedAt time.Time
}

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, content Content) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserText creates a user text message.
func NewUserText(text string) Message {
	return NewMessage(RoleUser, Text{Value: text})
}

// NewUserImage creates a user image message. The data is copied.
func NewUserImage(mediaType string, data []byte) Message {
	return NewMessage(RoleUser, Image{MediaType: mediaType, Data: bytes.Clone(data)})
}

// NewAssistantText creates an assistant text message.
func NewAssistantText(text string) Message {
	return NewMessage(RoleAssistant, Text{Value: text})
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Kind returns the content discriminant, or 0 for a message without content.
func (m Message) Kind() ContentKind {
	if m.Content == nil {
		return 0
	}
	return m.Content.Kind()
}

// Text returns the message text and true for text messages.
func (m Message) Text() (string, bool) {
	t, ok := m.Content.(Text)
	return t.Value, ok
}

// Image returns the image payload and true for image messages.
func (m Message) Image() (Image, bool) {
	img, ok := m.Content.(Image)
	return img, ok
}

// Equivalent reports whether two messages carry the same role and content.
// IDs and timestamps are ignored.
func (m Message) Equivalent(other Message) bool {
	if m.Role != other.Role || m.Kind() != other.Kind() {
		return false
	}
	switch c := m.Content.(type) {
	case Text:
		return c.Value == other.Content.(Text).Value
	case Image:
		o := other.Content.(Image)
		return c.MediaType == o.MediaType && bytes.Equal(c.Data, o.Data)
	default:
		return m.Content == nil && other.Content == nil
	}
}

// Validate checks the structural invariants of a message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return &InvariantViolation{Op: "validate", Reason: fmt.Sprintf("unknown role %q", m.Role)}
	}
	switch c := m.Content.(type) {
	case Text:
	case Image:
		if m.Role != RoleUser {
			return &InvariantViolation{Op: "validate", Reason: "image content must come from the user"}
		}
		if c.MediaType == "" || len(c.Data) == 0 {
			return &InvariantViolation{Op: "validate", Reason: "image content requires media type and data"}
		}
	default:
		return &InvariantViolation{Op: "validate", Reason: "message has no content"}
	}
	return nil
}

// Preview returns a short single-line summary of the message.
func (m Message) Preview(maxLen int) string {
	var s string
	switch c := m.Content.(type) {
	case Text:
		s = strings.Join(strings.Fields(c.Value), " ")
	case Image:
		s = fmt.Sprintf("[image %s, %d bytes]", c.MediaType, len(c.Data))
	}
	if maxLen > 3 && len([]rune(s)) > maxLen {
		return string([]rune(s)[:maxLen-3]) + "..."
	}
	return s
}

// detach returns a copy of m whose image bytes are not shared.
func (m Message) detach() Message {
	if img, ok := m.Content.(Image); ok {
		m.Content = img.clone()
	}
	return m
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

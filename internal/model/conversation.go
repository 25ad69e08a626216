// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered message history of one chat session.
//
// Committed messages are never edited or individually removed. The only
// mutable entry is the live assistant reply opened with BeginReply, which
// becomes an ordinary message when committed. All methods are safe for
// concurrent use; the UI reads snapshots while a turn writes.
type Conversation struct {
	mu sync.RWMutex

	id        string
	createdAt time.Time
	updatedAt time.Time

	messages []Message
	live     *Reply

	// epoch increments on every Reset so replies opened before a reset
	// can no longer commit.
	epoch uint64
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		id:        generateConversationID(),
		createdAt: now,
		updatedAt: now,
		messages:  make([]Message, 0),
	}
}

// ID returns the conversation ID.
func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// UpdatedAt returns the time of the last append or reset.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a user message to the end of the conversation.
// Assistant messages enter the history only through Reply.Commit.
func (c *Conversation) Append(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Role == RoleAssistant {
		return &InvariantViolation{Op: "append", Reason: "assistant messages are committed through a reply"}
	}
	if msg.ID == "" {
		msg.ID = generateID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != nil {
		return &InvariantViolation{Op: "append", Reason: "a reply is in progress"}
	}
	c.messages = append(c.messages, msg.detach())
	c.updatedAt = time.Now()
	return nil
}

// Len returns the number of committed messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Snapshot returns a copy of the committed messages in order.
func (c *Conversation) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// SnapshotLive returns the committed messages followed by the in-progress
// assistant reply, if one is open.
func (c *Conversation) SnapshotLive() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snapshotLocked()
	if c.live != nil {
		out = append(out, Message{
			ID:        c.live.id,
			Role:      RoleAssistant,
			Content:   Text{Value: c.live.buf.String()},
			CreatedAt: c.live.createdAt,
		})
	}
	return out
}

func (c *Conversation) snapshotLocked() []Message {
	out := make([]Message, len(c.messages), len(c.messages)+1)
	for i, m := range c.messages {
		out[i] = m.detach()
	}
	return out
}

// Reset empties the conversation and drops any live reply.
// Callers are responsible for telling the display to redraw from empty.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]Message, 0)
	if c.live != nil {
		c.live.done = true
		c.live = nil
	}
	c.epoch++
	c.updatedAt = time.Now()
}

// =============================================================================
// LIVE REPLY
// =============================================================================

// Reply is the assistant message being streamed for the current turn.
// It is owned by the turn that opened it.
type Reply struct {
	conv      *Conversation
	id        string
	createdAt time.Time
	epoch     uint64
	buf       strings.Builder
	done      bool
}

// BeginReply opens the live assistant reply. Only one reply may be open.
func (c *Conversation) BeginReply() (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != nil {
		return nil, &InvariantViolation{Op: "begin reply", Reason: "a reply is already in progress"}
	}
	r := &Reply{
		conv:      c,
		id:        generateID(),
		createdAt: time.Now(),
		epoch:     c.epoch,
	}
	c.live = r
	return r, nil
}

// Append adds a streamed fragment and returns the accumulated text.
// Empty fragments leave the text unchanged.
func (r *Reply) Append(fragment string) (string, error) {
	r.conv.mu.Lock()
	defer r.conv.mu.Unlock()
	if r.done {
		return "", &InvariantViolation{Op: "append fragment", Reason: "reply is no longer in progress"}
	}
	r.buf.WriteString(fragment)
	return r.buf.String(), nil
}

// Text returns the accumulated reply text.
func (r *Reply) Text() string {
	r.conv.mu.RLock()
	defer r.conv.mu.RUnlock()
	return r.buf.String()
}

// Commit appends the reply to the conversation as an assistant message and
// closes it.
func (r *Reply) Commit() (Message, error) {
	c := r.conv
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.done {
		return Message{}, &InvariantViolation{Op: "commit reply", Reason: "reply is no longer in progress"}
	}
	if r.epoch != c.epoch || c.live != r {
		r.done = true
		return Message{}, &InvariantViolation{Op: "commit reply", Reason: "conversation was reset during the reply"}
	}
	msg := Message{
		ID:        r.id,
		Role:      RoleAssistant,
		Content:   Text{Value: r.buf.String()},
		CreatedAt: r.createdAt,
	}
	c.messages = append(c.messages, msg)
	c.live = nil
	c.updatedAt = time.Now()
	r.done = true
	return msg, nil
}

// Discard closes the reply without committing it. Safe to call more than
// once and after Commit.
func (r *Reply) Discard() {
	c := r.conv
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == r {
		c.live = nil
	}
	r.done = true
}

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return "conv_" + uuid.NewString()
}

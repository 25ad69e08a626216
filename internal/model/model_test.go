// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Kind(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want ContentKind
	}{
		{"user text", NewUserText("hi"), KindText},
		{"user image", NewUserImage("image/png", []byte{1, 2}), KindImage},
		{"assistant text", NewAssistantText("hello"), KindText},
		{"no content", Message{Role: RoleUser}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.Kind(); got != tc.want {
				t.Errorf("Kind() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessage_Equivalent(t *testing.T) {
	a := NewUserText("same")
	b := NewUserText("same")
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, a.Equivalent(b))

	assert.False(t, a.Equivalent(NewAssistantText("same")))
	assert.False(t, a.Equivalent(NewUserText("other")))
	assert.False(t, a.Equivalent(NewUserImage("image/png", []byte("same"))))

	img1 := NewUserImage("image/png", []byte{1, 2, 3})
	img2 := NewUserImage("image/png", []byte{1, 2, 3})
	assert.True(t, img1.Equivalent(img2))
	assert.False(t, img1.Equivalent(NewUserImage("image/jpeg", []byte{1, 2, 3})))
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"user text", NewUserText(""), false},
		{"user image", NewUserImage("image/png", []byte{1}), false},
		{"bad role", Message{Role: "system", Content: Text{Value: "x"}}, true},
		{"nil content", Message{Role: RoleUser}, true},
		{"empty image", NewUserImage("image/png", nil), true},
		{"image without media type", NewUserImage("", []byte{1}), true},
		{"assistant image", NewMessage(RoleAssistant, Image{MediaType: "image/png", Data: []byte{1}}), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				var iv *InvariantViolation
				assert.True(t, errors.As(err, &iv))
			}
		})
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserText("line one\nline   two")
	assert.Equal(t, "line one line two", msg.Preview(80))
	assert.Equal(t, "line o...", msg.Preview(9))

	img := NewUserImage("image/png", make([]byte, 42))
	assert.Equal(t, "[image image/png, 42 bytes]", img.Preview(80))
}

func TestNewUserImage_CopiesData(t *testing.T) {
	data := []byte{1, 2, 3}
	msg := NewUserImage("image/png", data)
	data[0] = 9

	img, ok := msg.Image()
	require.True(t, ok)
	assert.Equal(t, byte(1), img.Data[0])
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Assistant ")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, r)

	_, err = ParseRole("tool")
	assert.Error(t, err)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendPreservesOrder(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Append(NewUserImage("image/png", []byte{1})))
	require.NoError(t, conv.Append(NewUserText("what is this?")))
	require.NoError(t, conv.Append(NewUserText("and this?")))

	snap := conv.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, KindImage, snap[0].Kind())
	assert.Equal(t, KindText, snap[1].Kind())
	assert.Equal(t, RoleUser, snap[2].Role)
	text, _ := snap[2].Text()
	assert.Equal(t, "and this?", text)
}

func TestConversation_AppendRejectsAssistant(t *testing.T) {
	conv := NewConversation()
	err := conv.Append(NewAssistantText("out of band"))

	var iv *InvariantViolation
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, 0, conv.Len())
}

func TestConversation_AppendRejectsInvalid(t *testing.T) {
	conv := NewConversation()
	err := conv.Append(Message{Role: RoleUser})
	require.Error(t, err)
	assert.Equal(t, 0, conv.Len())
}

func TestConversation_SnapshotIsCopy(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Append(NewUserImage("image/png", []byte{1, 2})))

	snap := conv.Snapshot()
	img, _ := snap[0].Image()
	img.Data[0] = 7

	again, _ := conv.Snapshot()[0].Image()
	assert.Equal(t, byte(1), again.Data[0])
}

func TestConversation_Reset(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Append(NewUserText("a")))
	require.NoError(t, conv.Append(NewUserText("b")))

	conv.Reset()

	assert.Equal(t, 0, conv.Len())
	assert.Empty(t, conv.Snapshot())
	assert.Empty(t, conv.SnapshotLive())
}

// =============================================================================
// REPLY TESTS
// =============================================================================

func TestReply_AccumulateAndCommit(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Append(NewUserText("2+2?")))

	reply, err := conv.BeginReply()
	require.NoError(t, err)

	for _, frag := range []string{"The ", "", "answer ", "is 4"} {
		_, err := reply.Append(frag)
		require.NoError(t, err)
	}
	assert.Equal(t, "The answer is 4", reply.Text())

	live := conv.SnapshotLive()
	require.Len(t, live, 2)
	assert.Equal(t, RoleAssistant, live[1].Role)
	assert.Len(t, conv.Snapshot(), 1)

	msg, err := reply.Commit()
	require.NoError(t, err)
	text, _ := msg.Text()
	assert.Equal(t, "The answer is 4", text)

	snap := conv.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[1].Equivalent(msg))
}

func TestReply_ImmutableAfterCommit(t *testing.T) {
	conv := NewConversation()
	reply, err := conv.BeginReply()
	require.NoError(t, err)
	_, err = reply.Commit()
	require.NoError(t, err)

	_, err = reply.Append("late")
	var iv *InvariantViolation
	assert.True(t, errors.As(err, &iv))

	_, err = reply.Commit()
	assert.True(t, errors.As(err, &iv))
	assert.Equal(t, 1, conv.Len())
}

func TestReply_Discard(t *testing.T) {
	conv := NewConversation()
	require.NoError(t, conv.Append(NewUserText("q")))
	reply, err := conv.BeginReply()
	require.NoError(t, err)
	_, _ = reply.Append("The answer ")

	reply.Discard()
	reply.Discard()

	assert.Len(t, conv.SnapshotLive(), 1)
	_, err = reply.Commit()
	assert.Error(t, err)
}

func TestReply_SingleLiveReply(t *testing.T) {
	conv := NewConversation()
	_, err := conv.BeginReply()
	require.NoError(t, err)

	_, err = conv.BeginReply()
	assert.Error(t, err)

	err = conv.Append(NewUserText("mid-stream"))
	assert.Error(t, err)
}

func TestReply_ResetOrphansReply(t *testing.T) {
	conv := NewConversation()
	reply, err := conv.BeginReply()
	require.NoError(t, err)

	conv.Reset()

	_, err = reply.Commit()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no longer in progress"))
	assert.Equal(t, 0, conv.Len())

	_, err = conv.BeginReply()
	assert.NoError(t, err)
}

func TestConversation_ConcurrentSnapshots(t *testing.T) {
	conv := NewConversation()
	reply, err := conv.BeginReply()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = reply.Append("x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = conv.SnapshotLive()
		}
	}()
	wg.Wait()

	assert.Len(t, reply.Text(), 200)
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultModel},
		{"sonnet", DefaultModel},
		{"HAIKU", "claude-3-haiku-20240307"},
		{"claude-custom-1", "claude-custom-1"},
	}

	for _, tc := range tests {
		if got := ResolveModel(tc.in); got != tc.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel(DefaultModel)
	require.True(t, ok)
	assert.Equal(t, "anthropic", info.Provider)

	_, ok = LookupModel("not-a-model")
	assert.False(t, ok)

	assert.Contains(t, ModelAliases(), "sonnet")
}

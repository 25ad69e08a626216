// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLiveBuffer_FlushOnlyWhenDirty(t *testing.T) {
	lb := NewLiveBuffer(1000)

	_, ok := lb.Flush()
	assert.False(t, ok, "empty buffer should not flush")

	lb.Set("4")
	text, ok := lb.Flush()
	assert.True(t, ok)
	assert.Equal(t, "4", text)

	_, ok = lb.ForceFlush()
	assert.False(t, ok, "unchanged text should not flush again")

	lb.Set("4")
	_, ok = lb.ForceFlush()
	assert.False(t, ok, "setting identical text is not a change")
}

func TestLiveBuffer_ThrottlesToFrameRate(t *testing.T) {
	lb := NewLiveBuffer(10)
	assert.Equal(t, 100*time.Millisecond, lb.Interval())

	lb.Set("a")
	_, ok := lb.Flush()
	assert.True(t, ok)

	lb.Set("ab")
	_, ok = lb.Flush()
	assert.False(t, ok, "second flush inside the frame interval")

	text, ok := lb.ForceFlush()
	assert.True(t, ok)
	assert.Equal(t, "ab", text)
}

func TestLiveBuffer_KeepsLatestText(t *testing.T) {
	lb := NewLiveBuffer(30)
	for _, s := range []string{"T", "Th", "The", "The answer"} {
		lb.Set(s)
	}
	text, ok := lb.ForceFlush()
	assert.True(t, ok)
	assert.Equal(t, "The answer", text)
	assert.Equal(t, "The answer", lb.Text())
}

func TestLiveBuffer_Reset(t *testing.T) {
	lb := NewLiveBuffer(30)
	lb.Set("partial")
	lb.Reset()
	assert.Empty(t, lb.Text())
	_, ok := lb.ForceFlush()
	assert.False(t, ok)
}

func TestLiveBuffer_SetMaxFPSBounds(t *testing.T) {
	lb := NewLiveBuffer(0)
	assert.Equal(t, time.Second/defaultMaxFPS, lb.Interval())

	lb.SetMaxFPS(500)
	assert.Equal(t, time.Second/defaultMaxFPS, lb.Interval())

	lb.SetMaxFPS(60)
	assert.Equal(t, time.Second/60, lb.Interval())
}

func TestLiveBuffer_ConcurrentSetAndFlush(t *testing.T) {
	lb := NewLiveBuffer(120)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		acc := ""
		for i := 0; i < 500; i++ {
			acc += "x"
			lb.Set(acc)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			lb.Flush()
		}
	}()
	wg.Wait()
	assert.Len(t, lb.Text(), 500)
}

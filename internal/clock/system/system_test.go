// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClockNowLocal ensures the default clock reports local time.
func TestClockNowLocal(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	assert.Equal(t, time.Local, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "expected %v between %v and %v", got, before, after)
}

// TestClockNowIn checks the location override.
func TestClockNowIn(t *testing.T) {
	t.Parallel()

	clk := NewIn(time.UTC)
	first := clk.Now()
	second := clk.Now()
	assert.Equal(t, time.UTC, first.Location())
	assert.False(t, second.Before(first))
	assert.Equal(t, time.Local, NewIn(nil).Now().Location())
}

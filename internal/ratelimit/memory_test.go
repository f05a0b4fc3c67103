package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndReserveSendSlot(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(5*time.Second, 24*time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.CheckAndReserveSendSlot(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.True(t, ok, "first send in the window must be allowed")

	ok, err = store.CheckAndReserveSendSlot(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.False(t, ok, "second send inside the cooldown must be rejected")

	// A different recipient is unaffected.
	ok, err = store.CheckAndReserveSendSlot(ctx, "sender", "254700000002")
	require.NoError(t, err)
	assert.True(t, ok)

	// After the cooldown lapses the slot opens again.
	now = now.Add(6 * time.Second)
	ok, err = store.CheckAndReserveSendSlot(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionWindowLifecycle(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(5*time.Second, 24*time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	open, err := store.IsSessionWindowOpen(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, store.OpenSessionWindow(ctx, "sender", "254700000001"))

	open, err = store.IsSessionWindowOpen(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.True(t, open)

	// 24 hours later the window has expired.
	now = now.Add(24*time.Hour + time.Minute)
	open, err = store.IsSessionWindowOpen(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.False(t, open)

	// An inbound message re-opens it.
	require.NoError(t, store.OpenSessionWindow(ctx, "sender", "254700000001"))
	open, err = store.IsSessionWindowOpen(ctx, "sender", "254700000001")
	require.NoError(t, err)
	assert.True(t, open)
}

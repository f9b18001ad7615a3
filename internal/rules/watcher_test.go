package rules

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnFileChange(t *testing.T) {
	path := writeRules(t, validRules)
	store := NewStore(path, nil)
	require.NoError(t, store.Load())
	require.Len(t, store.List(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(100 * time.Millisecond)

	updated := validRules + "  - name: candles\n    category: Decor > Candles\n    keywords: [candle]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return len(store.List()) == 3
	}, 3*time.Second, 25*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchKeepsRulesWhenChangeIsInvalid(t *testing.T) {
	path := writeRules(t, validRules)
	store := NewStore(path, nil)
	require.NoError(t, store.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: broken\n"), 0o644))

	// The invalid write must never replace the active rule set.
	time.Sleep(600 * time.Millisecond)
	assert.Len(t, store.List(), 2)
}

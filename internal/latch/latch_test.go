package latch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsCleared(t *testing.T) {
	l := New()
	assert.False(t, l.IsSet())

	select {
	case <-l.Done():
		t.Fatal("Done closed on a fresh latch")
	default:
	}
}

func TestSetWakesAllWaiters(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background()))
		}()
	}

	l.Set()
	wg.Wait()
	assert.True(t, l.IsSet())
}

func TestSetTwiceIsNoop(t *testing.T) {
	l := New()
	l.Set()
	assert.NotPanics(t, l.Set)
	assert.True(t, l.IsSet())
}

func TestClearBlocksNewWaiters(t *testing.T) {
	l := New()
	l.Set()
	old := l.Done()
	l.Clear()

	assert.False(t, l.IsSet())
	select {
	case <-old:
	default:
		t.Fatal("previous generation channel must stay closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClearWithoutSet(t *testing.T) {
	l := New()
	ch := l.Done()
	l.Clear()
	assert.Equal(t, ch, l.Done(), "clearing a cleared latch keeps the channel")
}

func TestWaitCancelled(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitResolvesMatchingMessage(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Second)

	done := make(chan struct{})
	var redirect Redirect
	var err error
	go func() {
		defer close(done)
		redirect, err = b.Wait(context.Background(), "Google")
	}()

	require.Eventually(t, func() bool {
		return b.Publish(Message{Target: "Google", Data: Redirect{Code: "code-1", State: "Google-abc"}})
	}, time.Second, 5*time.Millisecond)

	<-done
	require.NoError(t, err)
	assert.Equal(t, "code-1", redirect.Code)
	assert.Equal(t, "Google-abc", redirect.State)
}

func TestPublishIgnoresMismatchedTarget(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Second)

	go func() {
		_, _ = b.Wait(context.Background(), "Google")
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, open := b.waiters[ChannelName("Google")]
		return open
	}, time.Second, 5*time.Millisecond)

	assert.False(t, b.Publish(Message{Target: "Github", Data: Redirect{Code: "x"}}))
}

func TestPublishDebouncesDuplicates(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Second)
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	go func() {
		_, _ = b.Wait(context.Background(), "Discord")
	}()

	require.Eventually(t, func() bool {
		return b.Publish(Message{Target: "Discord", Data: Redirect{Code: "first"}})
	}, time.Second, 5*time.Millisecond)

	// Second fire of the same redirect inside the debounce window.
	assert.False(t, b.Publish(Message{Target: "Discord", Data: Redirect{Code: "second"}}))

	// Outside the window the channel is settled and gone anyway.
	now = now.Add(time.Second)
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, open := b.waiters[ChannelName("Discord")]
		return !open
	}, time.Second, 5*time.Millisecond)
	assert.False(t, b.Publish(Message{Target: "Discord", Data: Redirect{Code: "third"}}))
}

func TestPublishEvictsStaleDebounceEntries(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Second)
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	go func() {
		_, _ = b.Wait(context.Background(), "Google")
	}()

	require.Eventually(t, func() bool {
		return b.Publish(Message{Target: "Google", Data: Redirect{Code: "code-1"}})
	}, time.Second, 5*time.Millisecond)

	b.mu.Lock()
	_, tracked := b.recent[ChannelName("Google")]
	b.mu.Unlock()
	require.True(t, tracked)

	// Any publish past the window sweeps the stale entry out.
	now = now.Add(time.Second)
	b.Publish(Message{Target: "Github", Data: Redirect{Code: "code-2"}})

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.recent)
}

func TestWaitTimesOut(t *testing.T) {
	b := NewBroker(zerolog.Nop(), 20*time.Millisecond)

	_, err := b.Wait(context.Background(), "Google")
	require.ErrorIs(t, err, ErrTimeout)

	// Channel released on settle: a fresh wait opens cleanly.
	_, err = b.Wait(context.Background(), "Google")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWaitHonorsContextCancel(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Wait(ctx, "Google")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSecondWaitOnOpenChannelFails(t *testing.T) {
	b := NewBroker(zerolog.Nop(), time.Minute)

	go func() {
		_, _ = b.Wait(context.Background(), "Google")
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, open := b.waiters[ChannelName("Google")]
		return open
	}, time.Second, 5*time.Millisecond)

	_, err := b.Wait(context.Background(), "Google")
	require.Error(t, err)

	b.Publish(Message{Target: "Google", Data: Redirect{Code: "done"}})
}

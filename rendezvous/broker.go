package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout is returned when a redirect wait expires before the OAuth
// callback delivers a message.
var ErrTimeout = errors.New("rendezvous: timed out waiting for redirect")

const (
	// ChannelSuffix completes the deterministic channel name derived
	// from a platform path.
	ChannelSuffix = "_oauth_channel"

	// DefaultTimeout bounds how long a claim run will sit waiting on
	// user interaction in an external window.
	DefaultTimeout = 5 * time.Minute

	// debounceWindow suppresses duplicate rapid messages from the same
	// redirect (double-fired callbacks).
	debounceWindow = 300 * time.Millisecond
)

// ChannelName derives the rendezvous channel name for a platform path.
func ChannelName(path string) string {
	return path + ChannelSuffix
}

// Redirect is the payload an OAuth redirect delivers back to the
// initiating claim run.
type Redirect struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Message is the cross-context redirect message: the platform path it
// targets plus the redirect data.
type Message struct {
	Target string   `json:"target"`
	Data   Redirect `json:"data"`
}

// Broker bridges an OAuth redirect callback back to the claim run that
// initiated it, without a server round trip through storage. One waiter
// per channel; channels are always released on settle.
type Broker struct {
	log     zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan Redirect
	recent  map[string]time.Time
	now     func() time.Time
}

// NewBroker creates a broker. A zero timeout means DefaultTimeout.
func NewBroker(log zerolog.Logger, timeout time.Duration) *Broker {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		log:     log,
		timeout: timeout,
		waiters: make(map[string]chan Redirect),
		recent:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Wait opens the channel for the given platform path and blocks until a
// matching message arrives, the context is canceled, or the timeout
// expires. The channel is released on every return path.
func (b *Broker) Wait(ctx context.Context, path string) (Redirect, error) {
	name := ChannelName(path)

	b.mu.Lock()
	if _, open := b.waiters[name]; open {
		b.mu.Unlock()
		return Redirect{}, fmt.Errorf("rendezvous: channel %q already open", name)
	}
	ch := make(chan Redirect, 1)
	b.waiters[name] = ch
	b.mu.Unlock()

	defer b.release(name)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case redirect := <-ch:
		b.log.Info().Str("op", "wait").Str("channel", name).Msg("rendezvous: redirect received")
		return redirect, nil
	case <-ctx.Done():
		return Redirect{}, ctx.Err()
	case <-timer.C:
		b.log.Warn().Str("op", "wait").Str("channel", name).Msg("rendezvous: redirect wait timed out")
		return Redirect{}, ErrTimeout
	}
}

// Publish delivers a redirect message to the waiter on the target's
// channel, if any. Duplicate messages inside the debounce window are
// dropped. Returns whether the message was delivered.
func (b *Broker) Publish(msg Message) bool {
	name := ChannelName(msg.Target)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Debounce entries are only meaningful inside the window; sweep the
	// expired ones so the map stays bounded.
	for key, last := range b.recent {
		if b.now().Sub(last) >= debounceWindow {
			delete(b.recent, key)
		}
	}

	if last, ok := b.recent[name]; ok && b.now().Sub(last) < debounceWindow {
		b.log.Debug().Str("op", "publish").Str("channel", name).Msg("rendezvous: duplicate message dropped")
		return false
	}

	ch, open := b.waiters[name]
	if !open {
		b.log.Debug().Str("op", "publish").Str("channel", name).Msg("rendezvous: no open channel")
		return false
	}

	b.recent[name] = b.now()
	select {
	case ch <- msg.Data:
		return true
	default:
		return false
	}
}

func (b *Broker) release(name string) {
	b.mu.Lock()
	delete(b.waiters, name)
	b.mu.Unlock()
}

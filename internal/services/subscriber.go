package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"baladi-api/internal/backend"
	"baladi-api/internal/models"
)

type SubscriptionState int

const (
	StateIdle SubscriptionState = iota
	StateSubscribing
	StateActive
	StateUnsubscribing
	StateClosed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateUnsubscribing:
		return "unsubscribing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriptionOptions carries optional connectivity callbacks. OnDegraded
// fires once when the retry budget is exhausted so the consumer can fall
// back to polling; OnRecovered fires when a later retry succeeds.
type SubscriptionOptions struct {
	OnDegraded  func()
	OnRecovered func()
}

// FeedSubscriber manages change-feed subscriptions: lifecycle, transparent
// reconnection with backoff, and degraded-mode signalling. Events are
// delivered at-least-once and carry no payload; onChange is only ever a
// hint to re-fetch.
type FeedSubscriber struct {
	feed   backend.ChangeFeed
	logger *log.Logger

	reconnectWait     time.Duration
	maxReconnects     int
	degradedRetryWait time.Duration
}

func NewFeedSubscriber(feed backend.ChangeFeed) *FeedSubscriber {
	return &FeedSubscriber{
		feed:              feed,
		logger:            log.New(os.Stdout, "[Feed] ", log.LstdFlags),
		reconnectWait:     2 * time.Second,
		maxReconnects:     5,
		degradedRetryWait: 30 * time.Second,
	}
}

// Subscription is one live (topic, filter) stream. It is owned by the
// component that created it; that owner must Close it on teardown, or the
// feed keeps firing refreshes into a dead consumer.
type Subscription struct {
	owner    *FeedSubscriber
	table    string
	filter   models.ListingFilter
	onChange func()
	opts     SubscriptionOptions
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	state    SubscriptionState
	handle   backend.FeedHandle
	degraded bool
}

func (s *FeedSubscriber) Subscribe(ctx context.Context, table string, filter models.ListingFilter, onChange func(), opts *SubscriptionOptions) (*Subscription, error) {
	sub := &Subscription{
		owner:    s,
		table:    table,
		filter:   filter,
		onChange: onChange,
		state:    StateIdle,
	}
	if opts != nil {
		sub.opts = *opts
	}
	sub.ctx, sub.cancel = context.WithCancel(ctx)

	sub.setState(StateSubscribing)
	handle, err := s.feed.Subscribe(sub.ctx, table, filter, sub.deliver, sub.streamError)
	if err != nil {
		sub.setState(StateClosed)
		sub.cancel()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub.mu.Lock()
	sub.handle = handle
	sub.state = StateActive
	sub.mu.Unlock()

	return sub, nil
}

// Unsubscribe closes the subscription. Safe to call twice or on an
// already-closed subscription.
func (s *FeedSubscriber) Unsubscribe(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

func (sub *Subscription) State() SubscriptionState {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

// Degraded reports whether the stream lost connectivity and exhausted its
// fast retry budget.
func (sub *Subscription) Degraded() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.degraded
}

func (sub *Subscription) setState(state SubscriptionState) {
	sub.mu.Lock()
	sub.state = state
	sub.mu.Unlock()
}

// Close is idempotent: Active→Unsubscribing→Closed once, a no-op after.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.state == StateClosed || sub.state == StateUnsubscribing {
		sub.mu.Unlock()
		return
	}
	sub.state = StateUnsubscribing
	handle := sub.handle
	sub.handle = nil
	sub.mu.Unlock()

	sub.cancel()
	if handle != nil {
		handle.Close()
	}

	sub.setState(StateClosed)
}

// deliver forwards one mutation event as a refresh hint. Events arriving
// outside the Active state are dropped.
func (sub *Subscription) deliver(event backend.MutationEvent) {
	if sub.State() != StateActive {
		return
	}
	sub.onChange()
}

// streamError starts reconnection off the stream goroutine. The backend
// reports a terminal error at most once per stream, so each live stream
// spawns at most one reconnect loop.
func (sub *Subscription) streamError(err error) {
	go sub.reconnect(err)
}

func (sub *Subscription) reconnect(cause error) {
	s := sub.owner
	s.logger.Printf("stream error on %s, reconnecting: %v", sub.table, cause)

	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		select {
		case <-sub.ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * s.reconnectWait):
		}

		if sub.resubscribe(attempt) {
			return
		}
	}

	sub.mu.Lock()
	alreadyDegraded := sub.degraded
	sub.degraded = true
	sub.mu.Unlock()

	if !alreadyDegraded {
		s.logger.Printf("marking %s degraded after %d attempts", sub.table, s.maxReconnects)
		if sub.opts.OnDegraded != nil {
			sub.opts.OnDegraded()
		}
	}

	// Keep probing slowly so a long outage still heals without a restart.
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-time.After(s.degradedRetryWait):
		}

		if sub.resubscribe(0) {
			return
		}
	}
}

// resubscribe attempts to replace the dead stream. Returns true once the
// subscription is live again or permanently done.
func (sub *Subscription) resubscribe(attempt int) bool {
	s := sub.owner

	if sub.State() != StateActive {
		return true
	}

	handle, err := s.feed.Subscribe(sub.ctx, sub.table, sub.filter, sub.deliver, sub.streamError)
	if err != nil {
		s.logger.Printf("reconnect %d for %s failed: %v", attempt, sub.table, err)
		return false
	}

	sub.mu.Lock()
	if sub.state != StateActive {
		sub.mu.Unlock()
		handle.Close()
		return true
	}
	sub.handle = handle
	wasDegraded := sub.degraded
	sub.degraded = false
	sub.mu.Unlock()

	s.logger.Printf("resubscribed to %s", sub.table)
	if wasDegraded && sub.opts.OnRecovered != nil {
		sub.opts.OnRecovered()
	}

	return true
}

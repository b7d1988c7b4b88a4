// Package events keeps replay-then-follow feeds of contract events.
//
// A subscription opens the live feed first, then replays history up to the
// current head, then follows the live feed. A (block, log index) cursor
// drops everything already delivered, so the overlap between replay and
// live delivery, and any resubscribe after a disconnect, never produces a
// duplicate.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
)

// Errors.
var (
	ErrClosed        = errors.New("event manager closed")
	ErrInvalidFilter = errors.New("invalid event filter")
	ErrWatchConflict = errors.New("filter already watched without an event channel")
)

// StatusLost is shown when a subscription gives up.
const StatusLost = "Event subscription lost; see log."

const (
	defaultPollInterval   = 2 * time.Second
	defaultMaxResubscribe = 5
	defaultRetryDelay     = time.Second
	maxRetryDelay         = 30 * time.Second
	defaultBuffer         = 256
)

// Filter selects the events of one contract.
type Filter struct {
	Event     string  // "" matches every event of the contract
	FromBlock uint64  // first block replayed
	ToBlock   *uint64 // nil follows the chain; set ends after replay
}

// Bounded reports whether the filter ends at ToBlock.
func (f Filter) Bounded() bool { return f.ToBlock != nil }

// UpTo returns a pointer to n for Filter.ToBlock.
func UpTo(n uint64) *uint64 { return &n }

// Event is one decoded contract event.
type Event struct {
	Contract string
	Name     string
	Args     map[string]interface{}
	Block    uint64
	LogIndex uint
	TxHash   common.Hash
	Seq      uint64 // 1-based, per subscription
}

type key struct {
	address common.Address
	event   string
	from    uint64
	to      uint64
	bounded bool
}

func keyOf(b *contract.Binding, f Filter) key {
	k := key{address: b.Address(), event: f.Event, from: f.FromBlock}
	if f.ToBlock != nil {
		k.to, k.bounded = *f.ToBlock, true
	}
	return k
}

// Manager owns every event subscription of a session. There is at most one
// active subscription per (contract address, event, from, to).
type Manager struct {
	provider chain.Provider
	reporter *status.Reporter
	log      *zap.Logger

	pollInterval   time.Duration
	maxResubscribe int
	retryDelay     time.Duration
	callTimeout    time.Duration
	buffer         int

	mu     sync.Mutex
	subs   map[key]*Subscription
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithReporter sends events and feed notices to the status surface.
func WithReporter(r *status.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logging.OrNop(l) }
}

// WithPollInterval sets the polling period used when the provider cannot
// push notifications.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMaxResubscribe sets how many consecutive failed resubscribes are
// tolerated before a subscription stops.
func WithMaxResubscribe(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxResubscribe = n
		}
	}
}

// WithRetryDelay sets the first delay between resubscribe attempts. It
// doubles per consecutive failure.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) { m.callTimeout = d }
}

// NewManager creates a Manager.
func NewManager(provider chain.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:       provider,
		log:            zap.NewNop(),
		pollInterval:   defaultPollInterval,
		maxResubscribe: defaultMaxResubscribe,
		retryDelay:     defaultRetryDelay,
		buffer:         defaultBuffer,
		subs:           make(map[key]*Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WatchOption configures one Watch call.
type WatchOption func(*watchConfig)

type watchConfig struct {
	channel bool
}

// WithChannel also delivers events on Subscription.Events. The channel
// reader paces delivery: once its buffer is full the feed waits for it.
// Without this option events only reach the reporter.
func WithChannel() WatchOption {
	return func(c *watchConfig) { c.channel = true }
}

// Watch starts a subscription, or returns the active one with the same
// contract address and filter. The subscription also stops when ctx is done.
// Asking for a channel on a filter already watched without one fails with
// ErrWatchConflict.
func (m *Manager) Watch(ctx context.Context, b *contract.Binding, f Filter, opts ...WatchOption) (*Subscription, error) {
	var wc watchConfig
	for _, opt := range opts {
		opt(&wc)
	}
	if f.Bounded() && *f.ToBlock < f.FromBlock {
		return nil, fmt.Errorf("%w: to block %d before from block %d", ErrInvalidFilter, *f.ToBlock, f.FromBlock)
	}
	var topics [][]common.Hash
	if f.Event != "" {
		id, err := b.EventID(f.Event)
		if err != nil {
			return nil, err
		}
		topics = [][]common.Hash{{id}}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	k := keyOf(b, f)
	if s, ok := m.subs[k]; ok {
		if wc.channel && s.events == nil {
			return nil, fmt.Errorf("%w: %s %s from block %d", ErrWatchConflict, b.Name(), eventLabel(f.Event), f.FromBlock)
		}
		return s, nil
	}

	s := newSubscription(m, k, b, f, topics, wc.channel)
	m.subs[k] = s
	s.start(ctx)

	m.log.Info("watching events",
		zap.String("contract", b.Name()),
		zap.String("event", eventLabel(f.Event)),
		zap.Uint64("from", f.FromBlock),
		zap.Bool("bounded", f.Bounded()))
	return s, nil
}

// Unwatch stops s. Stopping an already stopped subscription is a no-op.
func (m *Manager) Unwatch(s *Subscription) {
	if s != nil {
		s.Stop()
	}
}

// Active returns the number of running subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close stops every subscription. Later Watch calls fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
}

func (m *Manager) remove(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.subs[s.key]; ok && cur == s {
		delete(m.subs, s.key)
	}
}

func (m *Manager) notice(n status.Notice) {
	if m.reporter != nil {
		m.reporter.Event(n)
	}
}

func (m *Manager) setStatus(text string) {
	if m.reporter != nil {
		m.reporter.SetStatus(text)
	}
}

func eventLabel(name string) string {
	if name == "" {
		return "*"
	}
	return name
}

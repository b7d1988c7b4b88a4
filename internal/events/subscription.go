package events

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/status"
)

var errFeedClosed = errors.New("live feed closed by provider")

// cursor is the position of the last delivered log.
type cursor struct {
	block uint64
	index uint
	set   bool
}

// after reports whether l comes strictly after the cursor.
func (c cursor) after(l types.Log) bool {
	if !c.set {
		return true
	}
	if l.BlockNumber != c.block {
		return l.BlockNumber > c.block
	}
	return l.Index > c.index
}

// Subscription is a replay-then-follow feed for one filter.
type Subscription struct {
	m       *Manager
	key     key
	binding *contract.Binding
	filter  Filter
	topics  [][]common.Hash

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	mu      sync.Mutex
	cursor  cursor
	seq     uint64
	err     error
	polling bool
}

func newSubscription(m *Manager, k key, b *contract.Binding, f Filter, topics [][]common.Hash, channel bool) *Subscription {
	s := &Subscription{
		m:       m,
		key:     k,
		binding: b,
		filter:  f,
		topics:  topics,
		done:    make(chan struct{}),
	}
	if channel {
		s.events = make(chan Event, m.buffer)
	}
	return s
}

func (s *Subscription) start(parent context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	stopWithParent := context.AfterFunc(parent, cancel)
	go func() {
		defer stopWithParent()
		s.run(ctx)
	}()
}

// Events delivers decoded events in (block, log index) order. It is closed
// once the subscription stops, and nil unless the subscription was started
// WithChannel.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed once the subscription stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Filter returns the filter the subscription was created with.
func (s *Subscription) Filter() Filter { return s.filter }

// Contract returns the watched contract's name.
func (s *Subscription) Contract() string { return s.binding.Name() }

// Stop ends delivery. Events already delivered stay delivered. Calling Stop
// again, or after the subscription ended by itself, is a no-op.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.m.log.Debug("unwatching events", zap.String("contract", s.binding.Name()), zap.String("event", eventLabel(s.filter.Event)))
	})
	s.cancel()
	<-s.done
}

// Active reports whether the subscription is still running.
func (s *Subscription) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Err returns why the subscription stopped on its own, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cursor returns the block and log index of the last delivered event.
func (s *Subscription) Cursor() (block uint64, index uint, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.block, s.cursor.index, s.cursor.set
}

// Seq returns the sequence number of the last delivered event.
func (s *Subscription) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Polling reports whether the feed fell back to polling.
func (s *Subscription) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

func (s *Subscription) run(ctx context.Context) {
	defer func() {
		s.m.remove(s)
		if s.events != nil {
			close(s.events)
		}
		close(s.done)
	}()

	failures := 0
	for {
		established, err := s.session(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if established {
			failures = 0
		}
		failures++

		if failures > s.m.maxResubscribe {
			s.fail(err, failures)
			return
		}

		from := s.nextFrom()
		s.m.log.Warn("event feed interrupted, resubscribing",
			zap.String("contract", s.binding.Name()),
			zap.Int("attempt", failures),
			zap.Uint64("from", from),
			zap.Error(err))
		s.m.notice(status.Notice{
			Kind:     status.KindSubscription,
			Contract: s.binding.Name(),
			Name:     s.filter.Event,
			Block:    from,
			Text:     fmt.Sprintf("%s event feed interrupted, resubscribing from block %d", s.binding.Name(), from),
		})

		delay := s.m.retryDelay << (failures - 1)
		if delay <= 0 || delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// session runs one subscribe-replay-follow cycle. established is true once
// replay succeeded. A nil error means the subscription ended normally.
func (s *Subscription) session(ctx context.Context) (established bool, err error) {
	if s.filter.Bounded() {
		return false, s.replay(ctx, *s.filter.ToBlock)
	}

	logs := make(chan types.Log, 128)
	var sub ethereum.Subscription

	subCtx, cancel := chain.WithTimeout(ctx, s.m.callTimeout)
	sub, err = s.m.provider.SubscribeFilterLogs(subCtx, s.query(s.nextFrom(), nil), logs)
	cancel()
	switch {
	case errors.Is(err, chain.ErrNotificationsUnsupported):
		s.startPolling()
		sub = nil
	case err != nil:
		return false, chain.WrapRPC("eth_subscribe", err)
	}
	if sub != nil {
		defer sub.Unsubscribe()
	}

	headCtx, cancel := chain.WithTimeout(ctx, s.m.callTimeout)
	head, err := s.m.provider.BlockNumber(headCtx)
	cancel()
	if err != nil {
		return false, chain.WrapRPC("eth_blockNumber", err)
	}
	if err := s.replay(ctx, head); err != nil {
		return false, err
	}

	if sub == nil {
		return true, s.poll(ctx, head)
	}
	return true, s.follow(ctx, sub, logs)
}

// replay delivers stored logs from the resume point up to head.
func (s *Subscription) replay(ctx context.Context, head uint64) error {
	from := s.nextFrom()
	if from > head {
		return nil
	}
	callCtx, cancel := chain.WithTimeout(ctx, s.m.callTimeout)
	logs, err := s.m.provider.FilterLogs(callCtx, s.query(from, new(big.Int).SetUint64(head)))
	cancel()
	if err != nil {
		return chain.WrapRPC("eth_getLogs", err)
	}
	for _, l := range logs {
		if !s.deliver(ctx, l) {
			return nil
		}
	}
	return nil
}

func (s *Subscription) follow(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log) error {
	for {
		select {
		case l := <-logs:
			if !s.deliver(ctx, l) {
				return nil
			}
		case err := <-sub.Err():
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errFeedClosed
			}
			return chain.WrapRPC("subscription", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// poll replaces the live feed with eth_getLogs every poll interval.
func (s *Subscription) poll(ctx context.Context, head uint64) error {
	t := time.NewTicker(s.m.pollInterval)
	defer t.Stop()

	last := head
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		callCtx, cancel := chain.WithTimeout(ctx, s.m.callTimeout)
		cur, err := s.m.provider.BlockNumber(callCtx)
		cancel()
		if err != nil {
			return chain.WrapRPC("eth_blockNumber", err)
		}
		if cur <= last {
			continue
		}

		callCtx, cancel = chain.WithTimeout(ctx, s.m.callTimeout)
		logs, err := s.m.provider.FilterLogs(callCtx, s.query(last+1, new(big.Int).SetUint64(cur)))
		cancel()
		if err != nil {
			return chain.WrapRPC("eth_getLogs", err)
		}
		for _, l := range logs {
			if !s.deliver(ctx, l) {
				return nil
			}
		}
		last = cur
	}
}

// deliver decodes l and hands it to the reporter, then to the channel if
// there is one, unless it was already delivered. It returns false once the
// subscription is stopping.
func (s *Subscription) deliver(ctx context.Context, l types.Log) bool {
	if l.Removed {
		s.m.log.Debug("skipping removed log", zap.Uint64("block", l.BlockNumber), zap.Uint("index", l.Index))
		return true
	}
	if l.Address != s.binding.Address() {
		return true
	}
	name, args, err := s.binding.DecodeLog(l)
	if err != nil {
		s.m.log.Debug("skipping undecodable log", zap.Stringer("tx", l.TxHash), zap.Error(err))
		return true
	}
	if s.filter.Event != "" && name != s.filter.Event {
		return true
	}

	s.mu.Lock()
	if !s.cursor.after(l) {
		s.mu.Unlock()
		return true
	}
	s.seq++
	s.cursor = cursor{block: l.BlockNumber, index: l.Index, set: true}
	ev := Event{
		Contract: s.binding.Name(),
		Name:     name,
		Args:     args,
		Block:    l.BlockNumber,
		LogIndex: l.Index,
		TxHash:   l.TxHash,
		Seq:      s.seq,
	}
	s.mu.Unlock()

	s.m.notice(status.Notice{
		Kind:     status.KindContractEvent,
		Contract: ev.Contract,
		Name:     ev.Name,
		Args:     ev.Args,
		Block:    ev.Block,
		LogIndex: ev.LogIndex,
		TxHash:   ev.TxHash,
		Seq:      ev.Seq,
	})

	if s.events == nil {
		return ctx.Err() == nil
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// nextFrom is the first block to ask for: the cursor block (it may hold
// more undelivered logs) or the filter's from block.
func (s *Subscription) nextFrom() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.set && s.cursor.block > s.filter.FromBlock {
		return s.cursor.block
	}
	return s.filter.FromBlock
}

func (s *Subscription) query(from uint64, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   to,
		Addresses: []common.Address{s.binding.Address()},
		Topics:    s.topics,
	}
}

func (s *Subscription) startPolling() {
	s.mu.Lock()
	first := !s.polling
	s.polling = true
	s.mu.Unlock()
	if !first {
		return
	}
	s.m.log.Info("provider cannot push notifications, polling for events",
		zap.String("contract", s.binding.Name()),
		zap.Duration("interval", s.m.pollInterval))
	s.m.notice(status.Notice{
		Kind:     status.KindSubscription,
		Contract: s.binding.Name(),
		Text:     fmt.Sprintf("live notifications unsupported, polling every %s", s.m.pollInterval),
	})
}

func (s *Subscription) fail(err error, attempts int) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.m.log.Error("event subscription stopped",
		zap.String("contract", s.binding.Name()),
		zap.String("event", eventLabel(s.filter.Event)),
		zap.Int("attempts", attempts),
		zap.Error(err))
	s.m.setStatus(StatusLost)
	s.m.notice(status.Notice{
		Kind:     status.KindError,
		Contract: s.binding.Name(),
		Name:     s.filter.Event,
		Text:     fmt.Sprintf("%s event subscription stopped: %v", s.binding.Name(), err),
	})
}

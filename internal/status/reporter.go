// Package status fans status lines and notices out to UI sinks.
//
// Producers never block and never see sink failures: every message goes
// through a FIFO drained by a single goroutine and a panicking sink is
// recovered and logged. Notices are never dropped; status lines are dropped
// once too many of them are waiting.
package status

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

// DefaultQueueSize is the number of pending status lines kept before new
// ones are dropped.
const DefaultQueueSize = 256

// Kind classifies a Notice.
type Kind string

const (
	KindContractEvent Kind = "event"        // decoded contract event
	KindTransaction   Kind = "transaction"  // transaction state change
	KindSubscription  Kind = "subscription" // subscription lost or recovered
	KindError         Kind = "error"
)

// Notice is a structured message for the UI. Contract events fill the
// event fields; other kinds mostly carry Text.
type Notice struct {
	Kind     Kind
	Contract string
	Name     string
	Args     map[string]interface{}
	Block    uint64
	LogIndex uint
	TxHash   common.Hash
	Seq      uint64
	Text     string
	Time     time.Time
}

func (n Notice) String() string {
	if n.Kind == KindContractEvent {
		return fmt.Sprintf("#%d %s.%s block=%d log=%d tx=%s", n.Seq, n.Contract, n.Name, n.Block, n.LogIndex, n.TxHash.Hex())
	}
	return fmt.Sprintf("[%s] %s", n.Kind, n.Text)
}

// Sink receives status lines and notices. Methods are called from a single
// goroutine.
type Sink interface {
	SetStatus(text string)
	OnEvent(n Notice)
}

type item struct {
	status  *string
	notice  *Notice
	barrier chan struct{}
}

// Reporter is the single status surface shared by every component.
type Reporter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sinks    []Sink
	pending  []item
	statuses int // status lines in pending
	closed   bool

	latest  atomic.Pointer[string]
	done    chan struct{}
	dropped atomic.Uint64
	size    int
	log     *zap.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(r *Reporter) { r.sinks = append(r.sinks, s) }
}

// WithQueueSize sets how many status lines may wait before new ones are
// dropped. Notices are not counted.
func WithQueueSize(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.size = n
		}
	}
}

// WithLogger sets the logger used for drops and sink panics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) { r.log = logging.OrNop(l) }
}

// New starts a Reporter.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		size: DefaultQueueSize,
		done: make(chan struct{}),
		log:  zap.NewNop(),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// AddSink registers s for every later message.
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// SetStatus publishes a status line.
func (r *Reporter) SetStatus(text string) {
	r.enqueue(item{status: &text})
}

// Statusf publishes a formatted status line.
func (r *Reporter) Statusf(format string, args ...interface{}) {
	r.SetStatus(fmt.Sprintf(format, args...))
}

// Event publishes a notice. A zero Time is set to now.
func (r *Reporter) Event(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	r.enqueue(item{notice: &n})
}

// Latest returns the most recent status line.
func (r *Reporter) Latest() string {
	if p := r.latest.Load(); p != nil {
		return *p
	}
	return ""
}

// Dropped returns how many status lines were dropped.
func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

// Flush blocks until every message enqueued before the call was delivered.
func (r *Reporter) Flush() {
	b := make(chan struct{})
	if !r.enqueue(item{barrier: b}) {
		return
	}
	<-b
}

// Close delivers what is queued and stops the reporter. Messages published
// afterwards are discarded.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done
}

// enqueue appends it without waiting on the sinks. It reports whether it
// was queued.
func (r *Reporter) enqueue(it item) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if it.status != nil {
		r.latest.Store(it.status)
		if r.statuses >= r.size {
			r.mu.Unlock()
			n := r.dropped.Add(1)
			r.log.Warn("status queue full, message dropped", zap.Uint64("dropped_total", n))
			return false
		}
		r.statuses++
	}
	r.pending = append(r.pending, it)
	r.cond.Signal()
	r.mu.Unlock()
	return true
}

// next waits for the oldest pending item. ok is false once the reporter is
// closed and drained.
func (r *Reporter) next() (it item, sinks []Sink, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.pending) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.pending) == 0 {
		return item{}, nil, false
	}
	it = r.pending[0]
	r.pending[0] = item{}
	r.pending = r.pending[1:]
	if it.status != nil {
		r.statuses--
	}
	return it, append([]Sink(nil), r.sinks...), true
}

func (r *Reporter) run() {
	defer close(r.done)
	for {
		it, sinks, ok := r.next()
		if !ok {
			return
		}
		if it.barrier != nil {
			close(it.barrier)
			continue
		}
		for _, s := range sinks {
			r.deliver(s, it)
		}
	}
}

func (r *Reporter) deliver(s Sink, it item) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("status sink panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
	}()
	switch {
	case it.status != nil:
		s.SetStatus(*it.status)
	case it.notice != nil:
		s.OnEvent(*it.notice)
	}
}

package status

import (
	"sync"

	"go.uber.org/zap"
)

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Status func(text string)
	Notice func(n Notice)
}

func (f SinkFuncs) SetStatus(text string) {
	if f.Status != nil {
		f.Status(text)
	}
}

func (f SinkFuncs) OnEvent(n Notice) {
	if f.Notice != nil {
		f.Notice(n)
	}
}

// LogSink writes everything to a zap logger, for headless runs.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) SetStatus(text string) {
	s.Log.Info(text)
}

func (s LogSink) OnEvent(n Notice) {
	fields := []zap.Field{zap.String("kind", string(n.Kind))}
	if n.Kind == KindContractEvent {
		fields = append(fields,
			zap.String("contract", n.Contract),
			zap.String("event", n.Name),
			zap.Uint64("seq", n.Seq),
			zap.Uint64("block", n.Block),
			zap.Uint("log_index", n.LogIndex),
			zap.Stringer("tx", n.TxHash),
			zap.Any("args", n.Args))
		s.Log.Info("contract event", fields...)
		return
	}
	if n.Kind == KindError {
		s.Log.Warn(n.Text, fields...)
		return
	}
	s.Log.Info(n.Text, fields...)
}

// Recorder keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	statuses []string
	notices  []Notice
}

func (r *Recorder) SetStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *Recorder) OnEvent(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Statuses returns the status lines in delivery order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// Notices returns the notices in delivery order, optionally only of kinds.
func (r *Recorder) Notices(kinds ...Kind) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		return append([]Notice(nil), r.notices...)
	}
	var out []Notice
	for _, n := range r.notices {
		for _, k := range kinds {
			if n.Kind == k {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

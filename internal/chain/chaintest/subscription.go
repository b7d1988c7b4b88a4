package chaintest

import (
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// subscription implements ethereum.Subscription. Logs are queued in buf and
// forwarded to the consumer channel by loop so publishing never blocks the
// chain.
type subscription struct {
	chain *Chain
	query ethereum.FilterQuery
	out   chan<- types.Log
	buf   chan types.Log
	errc  chan error
	quit  chan struct{}
	once  sync.Once
}

func (s *subscription) loop() {
	for {
		select {
		case l := <-s.buf:
			select {
			case s.out <- l:
			case <-s.quit:
				return
			}
		case <-s.quit:
			return
		}
	}
}

// Unsubscribe stops delivery and closes the error channel.
func (s *subscription) Unsubscribe() {
	s.chain.mu.Lock()
	delete(s.chain.subs, s)
	s.chain.mu.Unlock()
	s.stop(nil)
}

// Err delivers at most one error, then is closed.
func (s *subscription) Err() <-chan error {
	return s.errc
}

// stop must be called with the subscription already removed from the chain.
func (s *subscription) stop(err error) {
	s.once.Do(func() {
		if err != nil {
			s.errc <- err
		}
		close(s.quit)
		close(s.errc)
	})
}

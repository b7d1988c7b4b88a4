package rpc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no healthy RPC endpoint is available.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected among healthy candidates.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Discard nodes more than this many blocks behind the best.
	staleBlockThreshold = 3
)

// ParseAlgorithm maps a config value to an Algorithm. Empty means failover,
// which keeps the configured preference order.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case "":
		return AlgorithmFailover, nil
	case AlgorithmFastest, AlgorithmRoundRobin, AlgorithmFailover:
		return a, nil
	default:
		return "", fmt.Errorf("unknown rpc algorithm %q", s)
	}
}

// Endpoint is one candidate RPC URL and what a health check measured.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool  // meaningful only when Checked == true
	Checked     bool  // true when the endpoint has been health-checked
	Err         error // health check failure, if any
}

// Picker selects an RPC endpoint according to the configured algorithm.
type Picker struct {
	algo    Algorithm
	mu      sync.Mutex
	rrIndex int
}

// NewPicker creates a new Picker with the given algorithm.
func NewPicker(algo Algorithm) *Picker {
	return &Picker{algo: algo}
}

// Algorithm returns the selection algorithm.
func (p *Picker) Algorithm() Algorithm { return p.algo }

// Pick selects an endpoint from the provided list according to the algorithm.
func (p *Picker) Pick(endpoints []Endpoint) (*Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoHealthyRPC
	}

	switch p.algo {
	case AlgorithmRoundRobin:
		return p.pickRoundRobin(endpoints)
	case AlgorithmFastest:
		return pickFastest(endpoints)
	default:
		return pickFailover(endpoints)
	}
}

// pickFastest selects the best scoring healthy endpoint that is not stale.
func pickFastest(endpoints []Endpoint) (*Endpoint, error) {
	candidates := healthyEndpoints(endpoints)
	if len(candidates) == 0 {
		return nil, ErrNoHealthyRPC
	}

	var bestBlock uint64
	for _, e := range candidates {
		if e.BlockNumber > bestBlock {
			bestBlock = e.BlockNumber
		}
	}

	var winner *Endpoint
	var bestScore float64
	for _, e := range candidates {
		if bestBlock-e.BlockNumber > staleBlockThreshold {
			continue
		}
		s := score(e, bestBlock)
		if winner == nil || s > bestScore {
			winner = e
			bestScore = s
		}
	}
	if winner == nil {
		return nil, ErrNoHealthyRPC
	}
	return winner, nil
}

// pickRoundRobin cycles through all healthy endpoints.
func (p *Picker) pickRoundRobin(endpoints []Endpoint) (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := healthyEndpoints(endpoints)
	if len(healthy) == 0 {
		return nil, ErrNoHealthyRPC
	}

	idx := p.rrIndex % len(healthy)
	p.rrIndex = (idx + 1) % len(healthy)
	return healthy[idx], nil
}

// pickFailover returns the first endpoint, in order, that is not known bad.
func pickFailover(endpoints []Endpoint) (*Endpoint, error) {
	for i := range endpoints {
		e := &endpoints[i]
		if e.Checked && !e.Healthy {
			continue
		}
		return e, nil
	}
	return nil, ErrNoHealthyRPC
}

// --- scoring ---

func score(e *Endpoint, bestBlock uint64) float64 {
	var s float64

	// Latency score: higher = faster. Sub-millisecond local nodes stay finite.
	if e.Latency > 0 {
		s += 1000.0 / (float64(e.Latency.Microseconds())/1000.0 + 1)
	}

	// Loses one point per block behind the best.
	s -= float64(bestBlock - e.BlockNumber)
	return s
}

// healthyEndpoints returns endpoints eligible for selection. Unchecked
// endpoints are always candidates; checked ones only when healthy.
func healthyEndpoints(endpoints []Endpoint) []*Endpoint {
	var out []*Endpoint
	for i := range endpoints {
		e := &endpoints[i]
		if !e.Checked || e.Healthy {
			out = append(out, e)
		}
	}
	return out
}

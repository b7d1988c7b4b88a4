package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

// ErrProviderUnavailable is returned when no candidate provider answers.
var ErrProviderUnavailable = errors.New("no provider available")

// Source tells where the resolved provider came from.
type Source string

const (
	SourceInjected Source = "injected"
	SourceFallback Source = "fallback"
)

// Resolver picks the process-wide provider once. An injected provider is
// preferred; otherwise the fallback URLs are probed and one is picked.
type Resolver struct {
	mu          sync.Mutex
	injected    chain.Provider
	injectedURL string
	fallbacks   []string
	picker      *Picker
	timeout     time.Duration
	log         *zap.Logger

	provider chain.Provider
	source   Source
	url      string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithInjected supplies a ready provider that is used without probing.
func WithInjected(p chain.Provider) ResolverOption {
	return func(r *Resolver) { r.injected = p }
}

// WithInjectedURL supplies an externally configured endpoint. It is probed
// before any fallback.
func WithInjectedURL(url string) ResolverOption {
	return func(r *Resolver) { r.injectedURL = url }
}

// WithPicker sets how a fallback is chosen among healthy candidates.
func WithPicker(p *Picker) ResolverOption {
	return func(r *Resolver) { r.picker = p }
}

// WithHealthTimeout bounds each health check.
func WithHealthTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.log = logging.OrNop(l) }
}

// NewResolver creates a Resolver over the given fallback URLs, in
// preference order.
func NewResolver(fallbacks []string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fallbacks: append([]string(nil), fallbacks...),
		picker:    NewPicker(AlgorithmFailover),
		timeout:   DefaultHealthTimeout,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the provider, resolving it on first use. Once a provider
// is found every later call returns that same instance. Failures are not
// remembered, so a later call probes again.
func (r *Resolver) Resolve(ctx context.Context) (chain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.provider != nil {
		return r.provider, nil
	}

	if r.injected != nil {
		r.log.Info("Using provider detected from external source")
		r.set(r.injected, SourceInjected, "")
		return r.provider, nil
	}

	if r.injectedURL != "" {
		ep, c, err := HealthCheck(ctx, r.injectedURL, r.timeout)
		if err == nil {
			r.log.Info("Using provider detected from external source",
				zap.String("url", ep.URL),
				zap.Duration("latency", ep.Latency),
				zap.Uint64("block", ep.BlockNumber))
			r.set(c, SourceInjected, ep.URL)
			return r.provider, nil
		}
		r.log.Warn("injected provider unreachable", zap.String("url", r.injectedURL), zap.Error(err))
	}

	if len(r.fallbacks) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrProviderUnavailable)
	}

	results := ProbeAll(ctx, r.fallbacks, r.timeout)
	endpoints := Endpoints(results)
	for _, ep := range endpoints {
		if ep.Err != nil {
			r.log.Debug("endpoint unhealthy", zap.String("url", ep.URL), zap.Error(ep.Err))
		}
	}

	winner, err := r.picker.Pick(endpoints)
	if err != nil {
		closeExcept(results, nil)
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, lastErr(endpoints, err))
	}

	var client *chain.EVMClient
	for _, res := range results {
		if res.Endpoint.URL == winner.URL && res.Client != nil {
			client = res.Client
			break
		}
	}
	closeExcept(results, client)
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, winner.URL)
	}

	r.log.Info(fmt.Sprintf("No injected provider detected, falling back to %s", winner.URL),
		zap.String("algorithm", string(r.picker.Algorithm())),
		zap.Duration("latency", winner.Latency))
	r.set(client, SourceFallback, winner.URL)
	return r.provider, nil
}

// Source returns where the resolved provider came from, or "" before
// resolution.
func (r *Resolver) Source() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// URL returns the resolved endpoint URL. It is empty for a provider passed
// with WithInjected.
func (r *Resolver) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// Close closes the resolved provider. Resolve may be called again afterwards.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider != nil {
		r.provider.Close()
	}
	r.provider = nil
	r.source = ""
	r.url = ""
}

func (r *Resolver) set(p chain.Provider, src Source, url string) {
	r.provider = p
	r.source = src
	r.url = url
}

// lastErr prefers a concrete probe failure over the picker's generic error.
func lastErr(endpoints []Endpoint, fallback error) error {
	for i := len(endpoints) - 1; i >= 0; i-- {
		if endpoints[i].Err != nil {
			return endpoints[i].Err
		}
	}
	return fallback
}

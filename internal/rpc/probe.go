package rpc

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
)

// ProbeResult is the health check of one candidate URL. Client is set only
// when the check succeeded.
type ProbeResult struct {
	Endpoint Endpoint
	Client   *chain.EVMClient
}

// ProbeAll health-checks every URL in parallel and returns the results in
// input order. A failing URL never aborts the others.
func ProbeAll(ctx context.Context, urls []string, timeout time.Duration) []ProbeResult {
	results := make([]ProbeResult, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			ep, c, _ := HealthCheck(ctx, u, timeout)
			results[i] = ProbeResult{Endpoint: ep, Client: c}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return results
}

// Endpoints extracts the picker endpoints from probe results.
func Endpoints(results []ProbeResult) []Endpoint {
	endpoints := make([]Endpoint, 0, len(results))
	for _, r := range results {
		endpoints = append(endpoints, r.Endpoint)
	}
	return endpoints
}

// closeExcept closes every probed client except keep.
func closeExcept(results []ProbeResult, keep *chain.EVMClient) {
	for _, r := range results {
		if r.Client != nil && r.Client != keep {
			r.Client.Close()
		}
	}
}

package rpc

import (
	"context"
	"time"

	"github.com/Mohsinsiddi/w3dapp/internal/chain"
)

// DefaultHealthTimeout bounds a health check when no timeout is given.
const DefaultHealthTimeout = 5 * time.Second

// HealthCheck dials url and pings it with eth_blockNumber within timeout.
// On success the connected client is returned with the endpoint so the
// caller can keep using it; on failure nothing is left open.
func HealthCheck(ctx context.Context, url string, timeout time.Duration) (Endpoint, *chain.EVMClient, error) {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ep := Endpoint{URL: url, Checked: true}

	c, err := chain.Dial(timeoutCtx, url)
	if err != nil {
		ep.Err = err
		return ep, nil, err
	}

	latency, blockNum, err := c.Ping(timeoutCtx)
	ep.Latency = latency
	ep.BlockNumber = blockNum
	if err != nil {
		c.Close()
		ep.Err = err
		return ep, nil, err
	}
	ep.Healthy = true
	return ep, c, nil
}

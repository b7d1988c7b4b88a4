package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Mohsinsiddi/w3dapp/internal/logging"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxManifestBytes    = 1 << 20
)

// Syncer fetches a remote manifest and merges it into a local deployments
// file.
type Syncer struct {
	dest   string
	client *http.Client
	log    *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// New creates a Syncer that writes to the deployments file at dest.
func New(dest string, opts ...Option) *Syncer {
	s := &Syncer{
		dest:   dest,
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrNop(s.log).Named("deploy")
	return s
}

// Dest is the deployments file the Syncer writes.
func (s *Syncer) Dest() string { return s.dest }

// Run fetches the manifest at url, merges it over the local file and saves
// the result. Remote entries win. The local file is untouched on error.
func (s *Syncer) Run(ctx context.Context, url string) (Manifest, error) {
	remote, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	local, err := Load(s.dest)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.dest, err)
	}
	merged := local.Merge(remote)
	if err := Save(s.dest, merged); err != nil {
		return nil, fmt.Errorf("writing %s: %w", s.dest, err)
	}
	s.log.Info("deployments synced",
		zap.String("source", url),
		zap.String("dest", s.dest),
		zap.Int("contracts", len(merged)))
	return merged, nil
}

// Watch runs Run on a ticker until ctx is cancelled. The first run must
// succeed; later failures are logged and retried on the next tick.
func (s *Syncer) Watch(ctx context.Context, url string, interval time.Duration, onSync func(Manifest)) error {
	m, err := s.Run(ctx, url)
	if err != nil {
		return err
	}
	if onSync != nil {
		onSync(m)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m, err := s.Run(ctx, url)
			if err != nil {
				s.log.Warn("deployments sync failed", zap.String("source", url), zap.Error(err))
				continue
			}
			if onSync != nil {
				onSync(m)
			}
		}
	}
}

// Fetch downloads and validates the manifest at url.
func (s *Syncer) Fetch(ctx context.Context, url string) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching manifest: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

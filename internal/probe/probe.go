// Package probe checks RPC endpoints for liveness and chain id agreement.
package probe

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/deployctl/internal/id"
)

const DefaultConcurrency = 4

type EndpointReport struct {
	URL          string `json:"url"`
	OK           bool   `json:"ok"`
	ChainIDMatch bool   `json:"chain_id_match"`
	ChainID      int64  `json:"chain_id,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
	Error        string `json:"error,omitempty"`
}

type Report struct {
	Network   string           `json:"network"`
	ChainID   int64            `json:"chain_id"`
	Endpoints []EndpointReport `json:"endpoints"`
	// Healthy is the first endpoint, in configured order, that answered with the right chain id.
	Healthy string `json:"healthy,omitempty"`
}

// ChainIDFunc asks an endpoint for its chain id.
type ChainIDFunc func(ctx context.Context, url string) (*big.Int, error)

func dialChainID(ctx context.Context, url string) (*big.Int, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.ChainID(ctx)
}

type Prober struct {
	Timeout     time.Duration
	Concurrency int
	ChainID     ChainIDFunc
	Logger      *zap.Logger
	// Redact masks secrets embedded in endpoint URLs before they are logged.
	Redact func(string) string
}

// Probe queries every url concurrently. Individual failures are reported, not returned.
func (p Prober) Probe(ctx context.Context, network string, chainID id.ChainID, urls []string) (Report, error) {
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	query := p.ChainID
	if query == nil {
		query = dialChainID
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	redact := p.Redact
	if redact == nil {
		redact = func(v string) string { return v }
	}

	report := Report{Network: network, ChainID: chainID.Int64(), Endpoints: make([]EndpointReport, len(urls))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			started := time.Now()
			got, err := query(cctx, url)
			entry := EndpointReport{URL: url, LatencyMS: time.Since(started).Milliseconds()}
			if err != nil {
				entry.Error = err.Error()
				logger.Debug("endpoint check failed", zap.String("url", redact(url)), zap.String("error", redact(err.Error())))
			} else {
				entry.OK = true
				entry.ChainID = got.Int64()
				entry.ChainIDMatch = got.Int64() == chainID.Int64()
			}
			report.Endpoints[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	for _, e := range report.Endpoints {
		if e.OK && e.ChainIDMatch {
			report.Healthy = e.URL
			break
		}
	}
	return report, nil
}

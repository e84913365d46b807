package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ggonzalez94/deployctl/internal/cache"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/httpx"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

const StatusTTL = 10 * time.Minute

type Status struct {
	Network      string `json:"network"`
	ChainID      int64  `json:"chain_id"`
	Address      string `json:"address"`
	Verified     bool   `json:"verified"`
	ContractName string `json:"contract_name,omitempty"`
	Compiler     string `json:"compiler,omitempty"`
	CheckedAt    string `json:"checked_at"`
	Cached       bool   `json:"cached"`
}

// StatusCache is satisfied by *cache.Store.
type StatusCache interface {
	GetJSON(key string, out any) (bool, error)
	SetJSON(key string, v any, ttl time.Duration) error
}

type ExplorerClient struct {
	http     *httpx.Client
	registry *registry.Registry
	cache    StatusCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewExplorerClient(httpClient *httpx.Client, reg *registry.Registry, statusCache StatusCache, logger *zap.Logger) *ExplorerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExplorerClient{http: httpClient, registry: reg, cache: statusCache, logger: logger, now: time.Now}
}

type sourceCodeResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceCodeEntry struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
}

// Status asks the chain's etherscan-compatible explorer whether source code is published
// for address.
func (c *ExplorerClient) Status(ctx context.Context, chainID id.ChainID, address string) (Status, error) {
	if !common.IsHexAddress(address) {
		return Status{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid contract address %q", address))
	}
	addr := common.HexToAddress(address).Hex()
	network, ok := c.registry.NetworkName(chainID)
	if !ok {
		return Status{}, clierr.UnsupportedChain(chainID.Int64())
	}
	endpoint, ok := c.registry.ExplorerAPIURL(chainID)
	if !ok {
		return Status{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no explorer api known for %s", network))
	}
	if !registry.IsAllowedExplorerURL(endpoint) {
		return Status{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("explorer api for %s must use https", network))
	}

	key := cache.Key("explorer-status", chainID.String(), addr)
	if c.cache != nil {
		var cached Status
		if hit, err := c.cache.GetJSON(key, &cached); err == nil && hit {
			cached.Cached = true
			return cached, nil
		}
	}

	apiKey, err := c.registry.ResolveExplorerKey(chainID)
	if err != nil {
		return Status{}, err
	}
	query := url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {addr},
		"apikey":  {apiKey},
	}
	var resp sourceCodeResponse
	if _, err := c.http.GetJSON(ctx, endpoint, query, &resp); err != nil {
		return Status{}, err
	}

	var entries []sourceCodeEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		// Errors come back as status "0" with a string result.
		var msg string
		_ = json.Unmarshal(resp.Result, &msg)
		if strings.Contains(strings.ToLower(msg), "api key") {
			return Status{}, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s explorer rejected the api key: %s", network, msg))
		}
		return Status{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s explorer error: %s %s", network, resp.Message, msg))
	}

	status := Status{
		Network:   network,
		ChainID:   chainID.Int64(),
		Address:   addr,
		CheckedAt: c.now().UTC().Format(time.RFC3339),
	}
	if len(entries) > 0 && strings.TrimSpace(entries[0].SourceCode) != "" {
		status.Verified = true
		status.ContractName = entries[0].ContractName
		status.Compiler = entries[0].CompilerVersion
	}
	c.logger.Debug("explorer status", zap.String("network", network), zap.String("address", addr), zap.Bool("verified", status.Verified))
	if c.cache != nil {
		if err := c.cache.SetJSON(key, status, StatusTTL); err != nil {
			c.logger.Warn("cache explorer status", zap.Error(err))
		}
	}
	return status, nil
}

package registry

import (
	"net"
	"net/url"
	"strings"

	"github.com/ggonzalez94/deployctl/internal/id"
)

const (
	// AggregatorURLTemplate is filled with the canonical chain name and the Infura key.
	AggregatorURLTemplate = "https://%s.infura.io/v3/%s"

	GanacheRPCURL = "http://localhost:8545"
)

// Explorer APIs the verify plugin ships with. Custom explorer profiles take precedence.
var builtinExplorerAPIs = map[id.ChainID]string{
	id.EthereumMainnet:  "https://api.etherscan.io/api",
	id.Sepolia:          "https://api-sepolia.etherscan.io/api",
	id.OptimismMainnet:  "https://api-optimistic.etherscan.io/api",
	id.ArbitrumMainnet:  "https://api.arbiscan.io/api",
	id.PolygonMainnet:   "https://api.polygonscan.com/api",
	id.PolygonMumbai:    "https://api-testnet.polygonscan.com/api",
	id.BSCMainnet:       "https://api.bscscan.com/api",
	id.AvalancheMainnet: "https://api.snowtrace.io/api",
}

// IsAllowedExplorerURL accepts https endpoints and plain-http loopback endpoints used in
// tests and local explorers.
func IsAllowedExplorerURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

package registry

import (
	"sort"
	"strings"

	"github.com/ggonzalez94/deployctl/internal/id"
)

// PlaceholderAPIKey stands in for explorers that accept unauthenticated submissions.
const PlaceholderAPIKey = "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"

// APIKeyTable maps a chain to its block-explorer API key.
type APIKeyTable map[id.ChainID]string

// Environment variable holding each explorer key. Chains sharing an explorer family share
// a variable.
var explorerKeyEnv = map[id.ChainID]string{
	id.BaseMainnet:      "BASESCAN_API_KEY",
	id.EvmosMainnet:     "ESCAN_API_KEY",
	id.MantleMainnet:    "MANTLESCAN_API_KEY",
	id.PolygonZkEVM:     "ZKEVMSCAN_API_KEY",
	id.LineaMainnet:     "LINEASCAN_API_KEY",
	id.OpBNBMainnet:     "OPBNBSCAN_API_KEY",
	id.FantomMainnet:    "FTMSCAN_API_KEY",
	id.ArbitrumMainnet:  "ARBISCAN_API_KEY",
	id.AvalancheMainnet: "SNOWTRACE_API_KEY",
	id.BSCMainnet:       "BSCSCAN_API_KEY",
	id.EthereumMainnet:  "ETHERSCAN_API_KEY",
	id.OptimismMainnet:  "OPTIMISM_API_KEY",
	id.PolygonMainnet:   "POLYGONSCAN_API_KEY",
	id.PolygonMumbai:    "POLYGONSCAN_API_KEY",
	id.Sepolia:          "ETHERSCAN_API_KEY",
}

var keylessExplorers = []id.ChainID{id.InkSepolia, id.InkMainnet, id.BerachainMainnet}

// ExplorerKeyEnv returns the environment variable backing a chain's explorer key.
func ExplorerKeyEnv(chainID id.ChainID) (string, bool) {
	name, ok := explorerKeyEnv[chainID]
	return name, ok
}

// ExplorerKeyVariables lists the distinct explorer key variables, sorted.
func ExplorerKeyVariables() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(explorerKeyEnv))
	for _, chainID := range id.All() {
		name, ok := explorerKeyEnv[chainID]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadAPIKeys reads every explorer key through lookup. Unset variables leave the chain out
// of the table so the integrity pass can name it.
func LoadAPIKeys(lookup func(string) string) APIKeyTable {
	keys := APIKeyTable{}
	for chainID, name := range explorerKeyEnv {
		if v := strings.TrimSpace(lookup(name)); v != "" {
			keys[chainID] = v
		}
	}
	for _, chainID := range keylessExplorers {
		keys[chainID] = PlaceholderAPIKey
	}
	return keys
}

func isPlaceholderKey(v string) bool {
	return strings.TrimSpace(v) == PlaceholderAPIKey
}

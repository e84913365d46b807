package id

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

// ChainID is an EIP-155 chain id restricted to the supported networks.
type ChainID int64

const (
	EthereumMainnet  ChainID = 1
	OptimismMainnet  ChainID = 10
	BSCMainnet       ChainID = 56
	PolygonMainnet   ChainID = 137
	OpBNBMainnet     ChainID = 204
	FantomMainnet    ChainID = 250
	HederaMainnet    ChainID = 295
	HederaTestnet    ChainID = 296
	ZkSyncTestnet    ChainID = 300
	ZkSyncMainnet    ChainID = 324
	PolygonZkEVM     ChainID = 1101
	Ganache          ChainID = 1337
	MantleMainnet    ChainID = 5000
	HorizenMainnet   ChainID = 7332
	BaseMainnet      ChainID = 8453
	EvmosMainnet     ChainID = 9001
	Hardhat          ChainID = 31337
	ArbitrumMainnet  ChainID = 42161
	AvalancheMainnet ChainID = 43114
	InkMainnet       ChainID = 57073
	LineaMainnet     ChainID = 59144
	PolygonMumbai    ChainID = 80001
	BerachainMainnet ChainID = 80094
	InkSepolia       ChainID = 763373
	Sepolia          ChainID = 11155111
)

// Enum constant names as they appear in CHAIN_ID docs and deployment scripts.
var constantNames = map[ChainID]string{
	EthereumMainnet:  "ETHEREUM_MAINNET",
	OptimismMainnet:  "OPTIMISM_MAINNET",
	BSCMainnet:       "BSC_MAINNET",
	PolygonMainnet:   "POLYGON_MAINNET",
	OpBNBMainnet:     "OPBNB_MAINNET",
	FantomMainnet:    "FANTOM_MAINNET",
	HederaMainnet:    "HEDERA_MAINNET",
	HederaTestnet:    "HEDERA_TESTNET",
	ZkSyncTestnet:    "ZKSYNC_TESTNET",
	ZkSyncMainnet:    "ZKSYNC_MAINNET",
	PolygonZkEVM:     "POLYGON_ZKEVM",
	Ganache:          "GANACHE",
	MantleMainnet:    "MANTLE_MAINNET",
	HorizenMainnet:   "HORIZEN_MAINNET",
	BaseMainnet:      "BASE_MAINNET",
	EvmosMainnet:     "EVMOS_MAINNET",
	Hardhat:          "HARDHAT",
	ArbitrumMainnet:  "ARBITRUM_MAINNET",
	AvalancheMainnet: "AVALANCHE_MAINNET",
	InkMainnet:       "INK_MAINNET",
	LineaMainnet:     "LINEA_MAINNET",
	PolygonMumbai:    "POLYGON_MUMBAI",
	BerachainMainnet: "BERACHAIN_MAINNET",
	InkSepolia:       "INK_SEPOLIA",
	Sepolia:          "SEPOLIA",
}

var byConstantName = func() map[string]ChainID {
	out := make(map[string]ChainID, len(constantNames))
	for chainID, name := range constantNames {
		out[name] = chainID
	}
	return out
}()

// IsSupported is the guard applied before any per-chain table lookup.
func IsSupported(chainID ChainID) bool {
	_, ok := constantNames[chainID]
	return ok
}

// IsLocal reports whether the chain is a developer network with nothing deployed remotely.
func IsLocal(chainID ChainID) bool {
	return chainID == Hardhat || chainID == Ganache
}

func (c ChainID) Int64() int64 { return int64(c) }

func (c ChainID) String() string {
	if name, ok := constantNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CHAIN_%d", int64(c))
}

// All returns every supported chain id in ascending order.
func All() []ChainID {
	out := make([]ChainID, 0, len(constantNames))
	for chainID := range constantNames {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FromInt64 validates a raw numeric id.
func FromInt64(raw int64) (ChainID, error) {
	chainID := ChainID(raw)
	if !IsSupported(chainID) {
		return 0, clierr.UnsupportedChain(raw)
	}
	return chainID, nil
}

// Parse accepts a numeric id or an enum constant name. Network names are resolved by
// the registry, which owns the name table.
func Parse(input string) (ChainID, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return 0, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return FromInt64(n)
	}
	norm := strings.ToUpper(strings.ReplaceAll(raw, "-", "_"))
	if chainID, ok := byConstantName[norm]; ok {
		return chainID, nil
	}
	return 0, clierr.New(clierr.CodeUnsupportedChain, fmt.Sprintf("unsupported chain input: %s", input))
}

package registry

import "github.com/ggonzalez94/deployctl/internal/id"

type ExplorerProfile struct {
	APIURL      string `json:"api_url"`
	BrowserURL  string `json:"browser_url"`
	KeyRequired bool   `json:"key_required"`
}

type ChainProfile struct {
	ID                  id.ChainID       `json:"chain_id"`
	Name                string           `json:"name"`
	FallbackRPCURLs     []string         `json:"fallback_rpc_urls"`
	Explorer            *ExplorerProfile `json:"explorer,omitempty"`
	AggregatorSupported bool             `json:"aggregator_supported"`
}

// Substituted with the NodeReal key when the registry is built.
const nodeRealKeyToken = "{nodereal_api_key}"

// Canonical network names double as the Infura subdomain for aggregator-backed chains.
var chainNames = map[id.ChainID]string{
	id.EthereumMainnet:  "mainnet",
	id.OptimismMainnet:  "optimism-mainnet",
	id.BSCMainnet:       "bsc",
	id.PolygonMainnet:   "polygon-mainnet",
	id.OpBNBMainnet:     "opbnb-mainnet",
	id.FantomMainnet:    "fantom-mainnet",
	id.HederaMainnet:    "hedera-mainnet",
	id.HederaTestnet:    "hedera-testnet",
	id.PolygonZkEVM:     "polygon-zkevm",
	id.Ganache:          "ganache",
	id.MantleMainnet:    "mantle-mainnet",
	id.EvmosMainnet:     "evmos-mainnet",
	id.Hardhat:          "hardhat",
	id.AvalancheMainnet: "avalanche-mainnet",
	id.Sepolia:          "sepolia",
	id.ArbitrumMainnet:  "arbitrum-mainnet",
	id.PolygonMumbai:    "polygon-mumbai",
	id.LineaMainnet:     "linea-mainnet",
	id.HorizenMainnet:   "horizen-mainnet",
	id.BaseMainnet:      "base-mainnet",
	id.ZkSyncTestnet:    "zksync-testnet",
	id.ZkSyncMainnet:    "zksync-mainnet",
	id.InkSepolia:       "ink-sepolia",
	id.InkMainnet:       "ink-mainnet",
	id.BerachainMainnet: "berachain-mainnet",
}

// Public endpoints used whenever the aggregator does not serve a chain. The first entry is
// the default; the rest are kept for probing and manual failover.
var fallbackRPCURLs = map[id.ChainID][]string{
	id.EthereumMainnet: {"https://eth.llamarpc.com"},
	id.OptimismMainnet: {"https://optimism.llamarpc.com"},
	id.BSCMainnet:      {"https://rpc.ankr.com/bsc"},
	id.PolygonMainnet:  {"https://polygon.llamarpc.com"},
	id.OpBNBMainnet:    {"https://opbnb.publicnode.com"},
	id.FantomMainnet: {
		"https://rpc.fantom.network",
		"https://rpcapi.fantom.network",
		"https://fantom-pokt.nodies.app",
		"https://rpc.ftm.tools",
		"https://rpc.ankr.com/fantom",
		"https://rpc2.fantom.network",
		"https://rpc3.fantom.network",
		"https://fantom-mainnet.public.blastapi.io",
		"https://endpoints.omniatech.io/v1/fantom/mainnet/public",
	},
	id.HederaMainnet: {"https://mainnet.hashio.io/api"},
	id.HederaTestnet: {"https://testnet.hashio.io/api"},
	id.PolygonZkEVM:  {"https://rpc.ankr.com/polygon_zkevm"},
	id.Ganache:       {GanacheRPCURL},
	id.MantleMainnet: {
		"https://1rpc.io/mantle",
		"https://rpc.mantle.xyz",
		"https://mantle.drpc.org",
		"https://mantle-mainnet.public.blastapi.io",
		"https://mantle.publicnode.com",
		"https://rpc.ankr.com/mantle",
	},
	id.EvmosMainnet: {
		"https://evmos-evm.publicnode.com",
		"https://evmos.lava.build",
		"https://jsonrpc-evmos.mzonder.com",
		"https://json-rpc.evmos.tcnetwork.io",
		"https://rpc-evm.evmos.dragonstake.io",
		"https://evmos-jsonrpc.alkadeta.com",
		"https://evmos-jsonrpc.stake-town.com",
		"https://evm-rpc.evmos.silentvalidator.com",
		"https://evmos-mainnet.public.blastapi.io",
		"https://jsonrpc-evmos-ia.cosmosia.notional.ventures",
		"https://evmos-jsonrpc.theamsolutions.info",
		"https://alphab.ai/rpc/eth/evmos",
		"https://evmos-json-rpc.0base.dev",
		"https://json-rpc-evmos.mainnet.validatrium.club",
		"https://evmos-json-rpc.stakely.io",
		"https://json-rpc.evmos.blockhunters.org",
		"https://evmos-pokt.nodies.app",
		"https://evmosevm.rpc.stakin-nodes.com",
		"https://evmos-json.antrixy.org",
	},
	id.AvalancheMainnet: {
		"https://avalanche-mainnet-rpc.allthatnode.com",
		"https://rpc.ankr.com/avalanche",
		"https://1rpc.io/avax/c",
		"https://api.avax.network/ext/bc/C/rpc",
		"https://avalanche.public-rpc.com",
		"https://avalanche-c-chain.publicnode.com",
		"https://avalanche.blockpi.network/v1/rpc/public",
		"https://avalanche.drpc.org",
	},
	id.Sepolia:         {"https://1rpc.io/sepolia"},
	id.ArbitrumMainnet: {"https://arbitrum.llamarpc.com"},
	id.PolygonMumbai:   {"https://polygon-testnet.public.blastapi.io"},
	id.LineaMainnet:    {"https://linea.drpc.org"},
	id.HorizenMainnet:  {"https://rpc.ankr.com/horizen_eon"},
	id.BaseMainnet: {
		"https://mainnet.base.org",
		"https://base.blockpi.network/v1/rpc/public",
		"https://1rpc.io/base",
		"https://base-pokt.nodies.app",
		"https://base.meowrpc.com",
		"https://base-mainnet.public.blastapi.io",
		"https://base.gateway.tenderly.co",
		"https://gateway.tenderly.co/public/base",
		"https://rpc.notadegen.com/base",
		"https://base.publicnode.com",
		"https://base.drpc.org",
		"https://endpoints.omniatech.io/v1/base/mainnet/public",
		"https://base.llamarpc.com",
	},
	id.ZkSyncTestnet: {"https://sepolia.era.zksync.dev"},
	id.ZkSyncMainnet: {"https://mainnet.era.zksync.io"},
	id.InkSepolia: {
		"https://rpc-gel-sepolia.inkonchain.com",
		"https://rpc-qnd-sepolia.inkonchain.com",
		"https://rpc-ten-sepolia.inkonchain.com",
	},
	id.InkMainnet: {"https://rpc-gel.inkonchain.com"},
	id.BerachainMainnet: {
		"https://berachain.blockpi.network/v1/rpc/public",
		"https://berachain-rpc.publicnode.com",
		"https://rpc.berachain-apis.com",
		"https://rpc.berachain.com",
	},
}

// Custom explorer entries for chains the verify plugin does not know natively.
var explorerProfiles = map[id.ChainID]ExplorerProfile{
	id.BaseMainnet: {
		APIURL:      "https://api.basescan.org/api",
		BrowserURL:  "https://basescan.org/",
		KeyRequired: true,
	},
	id.EvmosMainnet: {
		APIURL:      "https://escan.live/api",
		BrowserURL:  "https://escan.live",
		KeyRequired: true,
	},
	id.InkSepolia: {
		APIURL:     "https://api.routescan.io/v2/network/testnet/evm/763373/etherscan",
		BrowserURL: "https://sepolia.inkonscan.xyz",
	},
	id.InkMainnet: {
		APIURL:     "https://pqr0zfqez8pm54s.blockscout.com/api",
		BrowserURL: "https://pqr0zfqez8pm54s.blockscout.com",
	},
	id.BerachainMainnet: {
		APIURL:     "https://api.routescan.io/v2/network/mainnet/evm/80094/etherscan",
		BrowserURL: "https://beratrail.io",
	},
	id.MantleMainnet: {
		APIURL:      "https://api.mantlescan.xyz/api",
		BrowserURL:  "https://mantlescan.xyz",
		KeyRequired: true,
	},
	id.PolygonZkEVM: {
		APIURL:      "https://api-zkevm.polygonscan.com/api",
		BrowserURL:  "https://zkevm.polygonscan.com",
		KeyRequired: true,
	},
	id.LineaMainnet: {
		APIURL:      "https://api.lineascan.build/api",
		BrowserURL:  "https://lineascan.build/",
		KeyRequired: true,
	},
	id.OpBNBMainnet: {
		APIURL:      "https://open-platform.nodereal.io/" + nodeRealKeyToken + "/op-bnb-mainnet/contract/",
		BrowserURL:  "https://opbnbscan.com/",
		KeyRequired: true,
	},
	id.FantomMainnet: {
		APIURL:      "https://api.ftmscan.com/api",
		BrowserURL:  "https://ftmscan.com",
		KeyRequired: true,
	},
}

var aggregatorSupported = map[id.ChainID]bool{
	id.EthereumMainnet:  true,
	id.BaseMainnet:      false,
	id.PolygonMainnet:   true,
	id.OptimismMainnet:  true,
	id.ArbitrumMainnet:  true,
	id.AvalancheMainnet: true,
}

// Pinned fork heights. Empty means every fork follows the latest block.
var defaultForkBlocks = map[id.ChainID]uint64{}

// DefaultProfiles assembles the built-in tables into one profile per supported chain,
// ordered by chain id.
func DefaultProfiles() []ChainProfile {
	all := id.All()
	out := make([]ChainProfile, 0, len(all))
	for _, chainID := range all {
		profile := ChainProfile{
			ID:                  chainID,
			Name:                chainNames[chainID],
			FallbackRPCURLs:     append([]string(nil), fallbackRPCURLs[chainID]...),
			AggregatorSupported: aggregatorSupported[chainID],
		}
		if explorer, ok := explorerProfiles[chainID]; ok {
			e := explorer
			profile.Explorer = &e
		}
		out = append(out, profile)
	}
	return out
}

// DefaultForkBlocks returns a copy of the pinned fork heights.
func DefaultForkBlocks() map[id.ChainID]uint64 {
	out := make(map[id.ChainID]uint64, len(defaultForkBlocks))
	for k, v := range defaultForkBlocks {
		out[k] = v
	}
	return out
}

package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/logging"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain registry commands"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List supported chains from the static tables (no keys required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			forkBlocks := registry.DefaultForkBlocks()
			items := make([]model.ChainInfo, 0)
			for _, p := range registry.DefaultProfiles() {
				items = append(items, chainInfo(p, forkBlocks))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}

	show := &cobra.Command{
		Use:   "show <chain>",
		Short: "Show one chain by network name, numeric id or constant name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := staticProfile(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), chainInfo(p, registry.DefaultForkBlocks()), nil, cacheMetaBypass(), nil, false)
		},
	}

	var revealRPC bool
	rpc := &cobra.Command{
		Use:   "rpc <chain>",
		Short: "Resolve the RPC URL a network entry would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.loadRegistry(true)
			if err != nil {
				return err
			}
			chainID, err := reg.ParseChain(args[0])
			if err != nil {
				return err
			}
			url, err := reg.ResolveRPCURL(chainID)
			if err != nil {
				return err
			}
			p, err := reg.Profile(chainID)
			if err != nil {
				return err
			}
			source := "fallback"
			if p.AggregatorSupported && strings.TrimSpace(s.settings.InfuraAPIKey) != "" {
				source = "aggregator"
			}
			if !revealRPC {
				url = s.redact(url)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.RPCResolution{
				ChainID: chainID.Int64(),
				Network: p.Name,
				URL:     url,
				Source:  source,
			}, nil, cacheMetaBypass(), nil, false)
		},
	}
	rpc.Flags().BoolVar(&revealRPC, "reveal", false, "Print the URL with its API key")

	var revealFork bool
	fork := &cobra.Command{
		Use:   "fork [chain]",
		Short: "Resolve the fork target of the in-process network (defaults to CHAIN_ID)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.loadRegistry(true)
			if err != nil {
				return err
			}
			chainID := s.settings.ChainID
			if len(args) == 1 {
				if chainID, err = reg.ParseChain(args[0]); err != nil {
					return err
				}
			}
			if chainID == 0 || chainID == id.Hardhat {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ForkResolution{
					Enabled: false,
					ChainID: id.Hardhat.Int64(),
					Network: hardhat.HardhatNetwork,
				}, nil, cacheMetaBypass(), nil, false)
			}
			target, err := reg.ResolveForkTarget(chainID)
			if err != nil {
				return err
			}
			name, _ := reg.NetworkName(chainID)
			url := target.URL
			if !revealFork {
				url = s.redact(url)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ForkResolution{
				Enabled:     true,
				ChainID:     chainID.Int64(),
				Network:     name,
				URL:         url,
				BlockNumber: target.BlockNumber,
			}, nil, cacheMetaBypass(), nil, false)
		},
	}
	fork.Flags().BoolVar(&revealFork, "reveal", false, "Print the URL with its API key")

	var revealKey bool
	explorerKey := &cobra.Command{
		Use:   "explorer-key <chain>",
		Short: "Resolve the block-explorer API key used for verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.loadRegistry(false)
			if err != nil {
				return err
			}
			chainID, err := reg.ParseChain(args[0])
			if err != nil {
				return err
			}
			key, err := reg.ResolveExplorerKey(chainID)
			if err != nil {
				return err
			}
			name, _ := reg.NetworkName(chainID)
			variable, _ := registry.ExplorerKeyEnv(chainID)
			placeholder := key == registry.PlaceholderAPIKey
			shown := key
			if key != "" && !revealKey && !placeholder {
				shown = logging.Redact(key)
			}
			var warnings []string
			if key == "" {
				warnings = append(warnings, fmt.Sprintf("no explorer key configured for %s; set %s to verify there", name, variable))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ExplorerKeyResolution{
				ChainID:     chainID.Int64(),
				Network:     name,
				Variable:    variable,
				Key:         shown,
				Configured:  key != "",
				Placeholder: placeholder,
				Revealed:    key != "" && (revealKey || placeholder),
			}, warnings, cacheMetaBypass(), nil, false)
		},
	}
	explorerKey.Flags().BoolVar(&revealKey, "reveal", false, "Print the full key")

	root.AddCommand(list)
	root.AddCommand(show)
	root.AddCommand(rpc)
	root.AddCommand(fork)
	root.AddCommand(explorerKey)
	return root
}

func chainInfo(p registry.ChainProfile, forkBlocks map[id.ChainID]uint64) model.ChainInfo {
	info := model.ChainInfo{
		ChainID:             p.ID.Int64(),
		Network:             p.Name,
		Local:               id.IsLocal(p.ID),
		AggregatorSupported: p.AggregatorSupported,
		FallbackRPCURLs:     append([]string{}, p.FallbackRPCURLs...),
	}
	if p.Explorer != nil {
		// Static URLs keep the NodeReal key token unfilled.
		info.ExplorerAPIURL = p.Explorer.APIURL
		info.ExplorerBrowserURL = p.Explorer.BrowserURL
		info.ExplorerKeyRequired = p.Explorer.KeyRequired
	}
	if v, ok := registry.ExplorerKeyEnv(p.ID); ok {
		info.ExplorerKeyEnv = v
	}
	if block, ok := forkBlocks[p.ID]; ok {
		b := block
		info.ForkBlock = &b
	}
	return info
}

// staticProfile finds a chain without building the key-validated registry.
func staticProfile(input string) (registry.ChainProfile, error) {
	norm := strings.ToLower(strings.TrimSpace(input))
	profiles := registry.DefaultProfiles()
	for _, p := range profiles {
		if p.Name == norm {
			return p, nil
		}
	}
	chainID, err := id.Parse(input)
	if err != nil {
		return registry.ChainProfile{}, err
	}
	for _, p := range profiles {
		if p.ID == chainID {
			return p, nil
		}
	}
	return registry.ChainProfile{}, clierr.UnsupportedChain(chainID.Int64())
}

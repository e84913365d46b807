package app

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/deployctl/internal/accounts"
	"github.com/ggonzalez94/deployctl/internal/config"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/model"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

func (s *runtimeState) newConfigCommand() *cobra.Command {
	root := &cobra.Command{Use: "config", Short: "Hardhat configuration commands"}

	check := &cobra.Command{
		Use:   "check",
		Short: "Run the startup checks and report every missing secret and API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := s.loadEnvironment()
			if err != nil {
				return err
			}
			cfg, err := s.buildHardhatConfig(env, false)
			if err != nil {
				return err
			}
			res := model.ConfigCheck{
				OK:             true,
				AccountSource:  string(env.accounts.Source),
				Networks:       len(cfg.Networks),
				ExplorerChains: len(env.registry.ExplorerChains()),
				DEX:            s.settings.DEX,
				ReportGas:      s.settings.ReportGas,
				EnvFile:        s.settings.EnvFile,
				ProjectDir:     s.settings.ProjectDir,
			}
			if addr, ok := env.accounts.Deployer(); ok {
				res.Deployer = addr.Hex()
			}
			if local := cfg.Networks[hardhat.HardhatNetwork]; local.Forking != nil {
				res.ForkChainID = local.ChainID
				res.ForkURL = local.Forking.URL
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil, cacheMetaBypass(), nil, false)
		},
	}

	var outPath string
	var includeSecrets bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Render the hardhat configuration as JSON (secrets masked unless --include-secrets)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := s.loadEnvironment()
			if err != nil {
				return err
			}
			cfg, err := s.buildHardhatConfig(env, includeSecrets)
			if err != nil {
				return err
			}
			res := model.ConfigExport{IncludeSecrets: includeSecrets, Networks: len(cfg.Networks)}
			if strings.TrimSpace(outPath) == "" {
				res.Config = cfg
			} else {
				if err := hardhat.WriteFile(outPath, cfg, includeSecrets); err != nil {
					return err
				}
				res.Path = outPath
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil, cacheMetaBypass(), nil, false)
		},
	}
	export.Flags().StringVar(&outPath, "out", "", "Write the config to this path instead of stdout")
	export.Flags().BoolVar(&includeSecrets, "include-secrets", false, "Keep keys, URLs and mnemonics unmasked")

	root.AddCommand(check)
	root.AddCommand(export)
	return root
}

func (s *runtimeState) buildHardhatConfig(env environment, includeSecrets bool) (hardhat.Config, error) {
	return hardhat.Build(hardhat.Inputs{
		Registry:       env.registry,
		Accounts:       env.accounts,
		Mnemonic:       env.mnemonic,
		ForkChain:      s.settings.ChainID,
		ReportGas:      s.settings.ReportGas,
		Secrets:        s.secretValues(),
		IncludeSecrets: includeSecrets,
	})
}

func (s *runtimeState) newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show which configuration inputs are set (values are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := s.envStatus()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}
}

func (s *runtimeState) envStatus() ([]model.EnvVar, error) {
	pk, pkSource, err := s.deployerKey()
	if err != nil {
		return nil, err
	}
	items := []model.EnvVar{
		{Name: config.EnvDeployerPK, Set: pk != "", Source: pkSource, Purpose: "deployer private key (env or vars store); wins over the mnemonic"},
		s.envVar(config.EnvMnemonic, s.settings.Mnemonic != "", false, "HD wallet for network accounts and the in-process network"),
		s.envVar(accounts.EnvKeystorePath, strings.TrimSpace(os.Getenv(accounts.EnvKeystorePath)) != "", false, "encrypted deployer keystore used when no private key is set"),
		s.envVar(config.EnvInfuraAPIKey, s.settings.InfuraAPIKey != "", true, "aggregator RPC key"),
		s.envVar(config.EnvNodeRealKey, s.settings.NodeRealAPIKey != "", true, "opBNB explorer API key"),
		s.envVar(config.EnvChainID, s.settings.ChainID != 0, false, "fork target of the in-process network"),
		s.envVar(config.EnvDEX, s.settings.DEX != "", false, "exchange selector passed to deployment scripts"),
		s.envVar(config.EnvReportGas, s.settings.ReportGas, false, "enable the gas reporter"),
	}

	required := requiredExplorerVariables()
	for _, name := range registry.ExplorerKeyVariables() {
		items = append(items, s.envVar(name, s.settings.ExplorerKeys[name] != "", required[name], "block-explorer verification key"))
	}
	return items, nil
}

func (s *runtimeState) envVar(name string, set, required bool, purpose string) model.EnvVar {
	return model.EnvVar{Name: name, Set: set, Source: s.originOf(name, set), Required: required, Purpose: purpose}
}

// originOf reports the layer that supplied name. Variables the loader did not track were
// read straight from the process environment.
func (s *runtimeState) originOf(name string, set bool) string {
	if !set {
		return ""
	}
	if src := s.settings.SourceOf(name); src != "" {
		return src
	}
	return config.SourceEnv
}

// requiredExplorerVariables names the variables backing custom explorer profiles, which
// fail the startup check when unset.
func requiredExplorerVariables() map[string]bool {
	out := map[string]bool{}
	for _, p := range registry.DefaultProfiles() {
		if p.Explorer == nil || !p.Explorer.KeyRequired {
			continue
		}
		if name, ok := registry.ExplorerKeyEnv(p.ID); ok {
			out[name] = true
		}
	}
	return out
}

func requireArg(value, flag string) error {
	if strings.TrimSpace(value) == "" {
		return clierr.New(clierr.CodeUsage, "--"+flag+" is required")
	}
	return nil
}

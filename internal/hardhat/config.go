// Package hardhat renders the task-runner configuration (networks, verification keys and
// compiler settings) from the chain registry and resolved deployer accounts.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ggonzalez94/deployctl/internal/accounts"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

const (
	HardhatNetwork = "hardhat"
	GanacheNetwork = "ganache"

	networkTimeoutMillis = 60_000
	mochaTimeoutMillis   = 3_600_000
	solidityVersion      = "0.5.17"

	// DefaultFileName is where tasks expect the rendered configuration in the project root.
	DefaultFileName = "deployctl.hardhat.json"

	redacted = "<redacted>"
)

type Inputs struct {
	Registry  *registry.Registry
	Accounts  accounts.Accounts
	Mnemonic  string
	ForkChain id.ChainID
	ReportGas bool
	// Secrets are masked in the output unless IncludeSecrets is set.
	Secrets        []string
	IncludeSecrets bool
}

type Config struct {
	DefaultNetwork string             `json:"defaultNetwork"`
	NamedAccounts  map[string]int     `json:"namedAccounts"`
	Etherscan      Etherscan          `json:"etherscan"`
	GasReporter    GasReporter        `json:"gasReporter"`
	Networks       map[string]Network `json:"networks"`
	Paths          Paths              `json:"paths"`
	Solidity       Solidity           `json:"solidity"`
	Typechain      Typechain          `json:"typechain"`
	Mocha          Mocha              `json:"mocha"`
}

type Network struct {
	URL      string               `json:"url,omitempty"`
	ChainID  int64                `json:"chainId"`
	Accounts any                  `json:"accounts,omitempty"`
	Timeout  int                  `json:"timeout,omitempty"`
	Forking  *registry.ForkTarget `json:"forking,omitempty"`
}

type Etherscan struct {
	APIKey       map[string]string `json:"apiKey"`
	CustomChains []CustomChain     `json:"customChains"`
}

type CustomChain struct {
	Network string    `json:"network"`
	ChainID int64     `json:"chainId"`
	URLs    ChainURLs `json:"urls"`
}

type ChainURLs struct {
	APIURL     string `json:"apiURL"`
	BrowserURL string `json:"browserURL"`
}

type GasReporter struct {
	Currency         string   `json:"currency"`
	Enabled          bool     `json:"enabled"`
	ExcludeContracts []string `json:"excludeContracts"`
	Src              string   `json:"src"`
}

type Paths struct {
	Artifacts string `json:"artifacts"`
	Cache     string `json:"cache"`
	Sources   string `json:"sources"`
	Tests     string `json:"tests"`
}

type Solidity struct {
	Compilers []Compiler `json:"compilers"`
}

type Compiler struct {
	Version string `json:"version"`
}

type Typechain struct {
	OutDir string `json:"outDir"`
}

type Mocha struct {
	Timeout int `json:"timeout"`
}

type mnemonicAccounts struct {
	Mnemonic string `json:"mnemonic"`
}

func Build(in Inputs) (Config, error) {
	if in.Registry == nil {
		return Config{}, clierr.New(clierr.CodeInternal, "hardhat config requires a registry")
	}
	reg := in.Registry
	mask := newMasker(in.Secrets, in.IncludeSecrets)

	accountsValue := in.Accounts.HardhatValue()
	if !in.IncludeSecrets {
		accountsValue = in.Accounts.RedactedValue()
	}

	cfg := Config{
		DefaultNetwork: HardhatNetwork,
		NamedAccounts:  map[string]int{"deployer": 0},
		Etherscan: Etherscan{
			APIKey:       map[string]string{},
			CustomChains: []CustomChain{},
		},
		GasReporter: GasReporter{
			Currency:         "USD",
			Enabled:          in.ReportGas,
			ExcludeContracts: []string{},
			Src:              "./contracts",
		},
		Networks: map[string]Network{},
		Paths: Paths{
			Artifacts: "./artifacts",
			Cache:     "./cache",
			Sources:   "./contracts",
			Tests:     "./test",
		},
		Solidity:  Solidity{Compilers: []Compiler{{Version: solidityVersion}}},
		Typechain: Typechain{OutDir: "types"},
		Mocha:     Mocha{Timeout: mochaTimeoutMillis},
	}

	for _, p := range reg.Profiles() {
		cfg.Etherscan.APIKey[p.Name] = mask.key(reg.APIKey(p.ID))
		if p.Explorer != nil {
			cfg.Etherscan.CustomChains = append(cfg.Etherscan.CustomChains, CustomChain{
				Network: p.Name,
				ChainID: p.ID.Int64(),
				URLs: ChainURLs{
					APIURL:     mask.apply(p.Explorer.APIURL),
					BrowserURL: p.Explorer.BrowserURL,
				},
			})
		}
		if id.IsLocal(p.ID) {
			continue
		}
		url, err := reg.ResolveRPCURL(p.ID)
		if err != nil {
			return Config{}, err
		}
		cfg.Networks[p.Name] = Network{
			URL:      mask.apply(url),
			ChainID:  p.ID.Int64(),
			Accounts: accountsValue,
			Timeout:  networkTimeoutMillis,
		}
	}

	local, err := localNetwork(in, mask)
	if err != nil {
		return Config{}, err
	}
	cfg.Networks[HardhatNetwork] = local
	cfg.Networks[GanacheNetwork] = Network{
		URL:      registry.GanacheRPCURL,
		ChainID:  id.Ganache.Int64(),
		Accounts: mnemonicValue(in.Mnemonic, mask),
	}
	return cfg, nil
}

// localNetwork forks CHAIN_ID when it names a remote chain; otherwise it is a plain
// in-process chain with id 31337.
func localNetwork(in Inputs, mask masker) (Network, error) {
	network := Network{
		ChainID:  id.Hardhat.Int64(),
		Accounts: mnemonicValue(in.Mnemonic, mask),
	}
	if in.ForkChain == 0 || in.ForkChain == id.Hardhat {
		return network, nil
	}
	target, err := in.Registry.ResolveForkTarget(in.ForkChain)
	if err != nil {
		return Network{}, err
	}
	target.URL = mask.apply(target.URL)
	network.Forking = &target
	network.ChainID = in.ForkChain.Int64()
	return network, nil
}

func mnemonicValue(mnemonic string, mask masker) any {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil
	}
	if !mask.include {
		mnemonic = redacted
	}
	return mnemonicAccounts{Mnemonic: mnemonic}
}

// NetworkNames lists configured networks in sorted order.
func (c Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteFile renders cfg as indented JSON. Files holding secrets are written 0600.
func WriteFile(path string, cfg Config, withSecrets bool) error {
	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode hardhat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	perm := os.FileMode(0o644)
	if withSecrets {
		perm = 0o600
	}
	if err := os.WriteFile(path, append(buf, '\n'), perm); err != nil {
		return fmt.Errorf("write hardhat config: %w", err)
	}
	return nil
}

type masker struct {
	include bool
	secrets []string
}

func newMasker(secrets []string, include bool) masker {
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" && s != registry.PlaceholderAPIKey {
			out = append(out, s)
		}
	}
	// Longest first so a secret containing another is masked whole.
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return masker{include: include, secrets: out}
}

// key masks a whole explorer key; the keyless placeholder is not a secret.
func (m masker) key(v string) string {
	if m.include || v == "" || v == registry.PlaceholderAPIKey {
		return v
	}
	return redacted
}

func (m masker) apply(v string) string {
	if m.include || v == "" {
		return v
	}
	for _, s := range m.secrets {
		v = strings.ReplaceAll(v, s, redacted)
	}
	return v
}

package hardhat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ggonzalez94/deployctl/internal/accounts"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testMnemonic   = "test test test test test test test test test test test junk"
	testInfuraKey  = "infura-secret"
	testNodeReal   = "nodereal-secret"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	keys := registry.LoadAPIKeys(func(name string) string { return "key-" + strings.ToLower(name) })
	reg, err := registry.New(registry.Options{
		APIKeys:       keys,
		AggregatorKey: testInfuraKey,
		NodeRealKey:   testNodeReal,
		ForkBlocks:    map[id.ChainID]uint64{id.BSCMainnet: 34_274_774},
	})
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	return reg
}

func testAccounts(t *testing.T) accounts.Accounts {
	t.Helper()
	acc, err := accounts.Resolve(accounts.Inputs{PrivateKey: testPrivateKey, Mnemonic: testMnemonic})
	if err != nil {
		t.Fatalf("accounts.Resolve failed: %v", err)
	}
	return acc
}

func TestBuildNetworks(t *testing.T) {
	cfg, err := Build(Inputs{
		Registry:       testRegistry(t),
		Accounts:       testAccounts(t),
		Mnemonic:       testMnemonic,
		IncludeSecrets: true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(cfg.Networks) != len(id.All()) {
		t.Fatalf("expected one network per chain, got %d", len(cfg.Networks))
	}
	mainnet := cfg.Networks["mainnet"]
	if mainnet.URL != "https://mainnet.infura.io/v3/"+testInfuraKey || mainnet.ChainID != 1 || mainnet.Timeout != 60_000 {
		t.Fatalf("unexpected mainnet network %+v", mainnet)
	}
	if keys, ok := mainnet.Accounts.([]string); !ok || keys[0] != "0x"+testPrivateKey {
		t.Fatalf("expected private key accounts, got %#v", mainnet.Accounts)
	}
	if base := cfg.Networks["base-mainnet"]; base.URL != "https://mainnet.base.org" {
		t.Fatalf("unexpected base url %s", base.URL)
	}

	local := cfg.Networks[HardhatNetwork]
	if local.ChainID != 31337 || local.Forking != nil || local.URL != "" {
		t.Fatalf("unexpected hardhat network %+v", local)
	}
	if acc, ok := local.Accounts.(mnemonicAccounts); !ok || acc.Mnemonic != testMnemonic {
		t.Fatalf("expected mnemonic accounts on hardhat, got %#v", local.Accounts)
	}
	if ganache := cfg.Networks[GanacheNetwork]; ganache.URL != registry.GanacheRPCURL || ganache.ChainID != 1337 {
		t.Fatalf("unexpected ganache network %+v", ganache)
	}

	if cfg.Etherscan.APIKey["base-mainnet"] != "key-basescan_api_key" {
		t.Fatalf("unexpected base api key %q", cfg.Etherscan.APIKey["base-mainnet"])
	}
	if cfg.Etherscan.APIKey["hardhat"] != "" {
		t.Fatalf("expected empty api key for hardhat, got %q", cfg.Etherscan.APIKey["hardhat"])
	}
	if len(cfg.Etherscan.CustomChains) != 10 {
		t.Fatalf("expected 10 custom chains, got %d", len(cfg.Etherscan.CustomChains))
	}
	if cfg.Solidity.Compilers[0].Version != "0.5.17" || cfg.Mocha.Timeout != 3_600_000 || cfg.Typechain.OutDir != "types" {
		t.Fatalf("unexpected compiler settings %+v", cfg)
	}
	if cfg.NamedAccounts["deployer"] != 0 || cfg.DefaultNetwork != "hardhat" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestBuildForkChain(t *testing.T) {
	cfg, err := Build(Inputs{
		Registry:  testRegistry(t),
		Accounts:  testAccounts(t),
		ForkChain: id.BSCMainnet,
		ReportGas: true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	local := cfg.Networks[HardhatNetwork]
	if local.ChainID != 56 || local.Forking == nil {
		t.Fatalf("expected bsc fork, got %+v", local)
	}
	if local.Forking.URL != "https://rpc.ankr.com/bsc" || local.Forking.BlockNumber == nil || *local.Forking.BlockNumber != 34_274_774 {
		t.Fatalf("unexpected fork target %+v", local.Forking)
	}
	if local.Accounts != nil {
		t.Fatalf("expected no hardhat accounts without a mnemonic, got %#v", local.Accounts)
	}
	if !cfg.GasReporter.Enabled {
		t.Fatal("expected gas reporter enabled")
	}
}

func TestBuildRejectsGanacheFork(t *testing.T) {
	_, err := Build(Inputs{Registry: testRegistry(t), Accounts: testAccounts(t), ForkChain: id.Ganache})
	if !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected config error forking ganache, got %v", err)
	}
}

func TestBuildRedactsSecrets(t *testing.T) {
	cfg, err := Build(Inputs{
		Registry:  testRegistry(t),
		Accounts:  testAccounts(t),
		Mnemonic:  testMnemonic,
		ForkChain: id.EthereumMainnet,
		Secrets:   []string{testInfuraKey, testNodeReal},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	buf, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(buf)
	for _, secret := range []string{testInfuraKey, testNodeReal, testPrivateKey, "test junk", "key-basescan_api_key"} {
		if strings.Contains(body, secret) {
			t.Fatalf("secret %q leaked into redacted config", secret)
		}
	}
	if cfg.Etherscan.APIKey["ink-sepolia"] != registry.PlaceholderAPIKey {
		t.Fatalf("placeholder key should stay visible, got %q", cfg.Etherscan.APIKey["ink-sepolia"])
	}
	if !strings.Contains(cfg.Networks["mainnet"].URL, "infura.io/v3/"+redacted) {
		t.Fatalf("expected redacted infura url, got %s", cfg.Networks["mainnet"].URL)
	}
}

func TestWriteFile(t *testing.T) {
	cfg, err := Build(Inputs{Registry: testRegistry(t), Accounts: testAccounts(t)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", DefaultFileName)
	if err := WriteFile(path, cfg, true); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 for secret-bearing file, got %v", info.Mode().Perm())
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded["networks"]; !ok {
		t.Fatalf("expected networks key in %s", string(buf))
	}
	names := cfg.NetworkNames()
	if names[0] != "arbitrum-mainnet" {
		t.Fatalf("expected sorted names, got %v", names[:3])
	}
}

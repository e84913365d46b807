package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("DEPLOYCTL_CONFIG", "")
	t.Setenv("DEPLOYCTL_PROJECT_DIR", "")
	t.Setenv(EnvDotenvPath, "")
	t.Setenv(EnvChainID, "")
	t.Setenv(EnvReportGas, "")
	return tmp
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DEPLOYCTL_OUTPUT", "json")
	t.Setenv("DEPLOYCTL_LOG_LEVEL", "info")
	flags := GlobalFlags{ConfigPath: configPath, ProjectDir: tmp, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.LogLevel != "info" {
		t.Fatalf("expected env log level over file, got %s", settings.LogLevel)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadTOMLByExtension(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "deployctl.toml")
	body := "timeout = \"15s\"\nhardhat_command = [\"pnpm\", \"hardhat\"]\n\n[explorer]\nrate_limit = 2.5\n\n[stores]\ndeployments_path = \"" + filepath.ToSlash(filepath.Join(tmp, "d.db")) + "\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settings, err := Load(GlobalFlags{ConfigPath: configPath, ProjectDir: tmp, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", settings.Timeout)
	}
	if len(settings.HardhatCommand) != 2 || settings.HardhatCommand[0] != "pnpm" {
		t.Fatalf("unexpected hardhat command %v", settings.HardhatCommand)
	}
	if settings.ExplorerRateLimit != 2.5 {
		t.Fatalf("unexpected rate limit %v", settings.ExplorerRateLimit)
	}
	if settings.DeploymentsLockPath != filepath.Join(tmp, "d.lock") {
		t.Fatalf("unexpected lock path %s", settings.DeploymentsLockPath)
	}
	if settings.Retries != 2 {
		t.Fatalf("expected default retries, got %d", settings.Retries)
	}
}

func TestLoadReadsDotenvWithoutOverriding(t *testing.T) {
	tmp := isolate(t)
	for _, name := range []string{EnvNodeRealKey, "BASESCAN_API_KEY"} {
		_ = os.Unsetenv(name)
		name := name
		t.Cleanup(func() { _ = os.Unsetenv(name) })
	}
	t.Setenv(EnvDEX, "from-shell")

	envFile := filepath.Join(tmp, ".env")
	body := "NODEREAL_API_KEY=from-dotenv\nBASESCAN_API_KEY=basescan-key\nDEX=from-dotenv\n"
	if err := os.WriteFile(envFile, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	settings, err := Load(GlobalFlags{ProjectDir: tmp, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.EnvFile != envFile {
		t.Fatalf("expected default env file in project dir, got %s", settings.EnvFile)
	}
	if settings.NodeRealAPIKey != "from-dotenv" {
		t.Fatalf("expected dotenv value, got %q", settings.NodeRealAPIKey)
	}
	if settings.DEX != "from-shell" {
		t.Fatalf("expected shell value to win over dotenv, got %q", settings.DEX)
	}
	if got := settings.ExplorerKeyLookup("BASESCAN_API_KEY"); got != "basescan-key" {
		t.Fatalf("expected explorer key from dotenv, got %q", got)
	}
	if got := settings.SourceOf(EnvNodeRealKey); got != SourceDotenv {
		t.Fatalf("expected dotenv source for %s, got %q", EnvNodeRealKey, got)
	}
	if got := settings.SourceOf(EnvDEX); got != SourceEnv {
		t.Fatalf("expected shell source for %s, got %q", EnvDEX, got)
	}
}

func TestLoadRecordsFileSources(t *testing.T) {
	tmp := isolate(t)
	t.Setenv(EnvDEX, "")
	t.Setenv(EnvInfuraAPIKey, "")
	t.Setenv(EnvMnemonic, "")
	configPath := filepath.Join(tmp, "config.yaml")
	body := `dex: uniswap
infura:
  api_key: from-file
explorer:
  keys:
    etherscan_api_key: file-key
`
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ETHERSCAN_API_KEY", "from-shell")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, ProjectDir: tmp, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.DEX != "uniswap" || settings.SourceOf(EnvDEX) != SourceFile {
		t.Fatalf("expected dex from file, got %q source=%q", settings.DEX, settings.SourceOf(EnvDEX))
	}
	if settings.SourceOf(EnvInfuraAPIKey) != SourceFile {
		t.Fatalf("expected infura key from file, got source=%q", settings.SourceOf(EnvInfuraAPIKey))
	}
	if settings.ExplorerKeyLookup("ETHERSCAN_API_KEY") != "from-shell" || settings.SourceOf("ETHERSCAN_API_KEY") != SourceEnv {
		t.Fatalf("expected shell explorer key over file, got source=%q", settings.SourceOf("ETHERSCAN_API_KEY"))
	}
	if settings.SourceOf(EnvMnemonic) != "" {
		t.Fatalf("unset inputs must have no source, got %q", settings.SourceOf(EnvMnemonic))
	}
}

func TestLoadMissingDotenvIsIgnored(t *testing.T) {
	tmp := isolate(t)
	if _, err := Load(GlobalFlags{ProjectDir: tmp, EnvFile: "missing.env", Retries: -1}); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadChainIDValidation(t *testing.T) {
	tmp := isolate(t)

	t.Setenv(EnvChainID, "8453")
	settings, err := Load(GlobalFlags{ProjectDir: tmp, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ChainID != id.BaseMainnet || !settings.HasForkChain() {
		t.Fatalf("expected base fork chain, got %v", settings.ChainID)
	}

	t.Setenv(EnvChainID, "12345")
	_, err = Load(GlobalFlags{ProjectDir: tmp, Retries: -1})
	if !clierr.HasCode(err, clierr.CodeUnsupportedChain) {
		t.Fatalf("expected unsupported chain error, got %v", err)
	}

	t.Setenv(EnvChainID, "base")
	_, err = Load(GlobalFlags{ProjectDir: tmp, Retries: -1})
	if !clierr.HasCode(err, clierr.CodeUnsupportedChain) {
		t.Fatalf("expected non-numeric chain id to be rejected, got %v", err)
	}

	t.Setenv(EnvChainID, "")
	settings, err = Load(GlobalFlags{ProjectDir: tmp, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.HasForkChain() {
		t.Fatal("expected no fork chain without CHAIN_ID")
	}
}

func TestLoadDefaultsUnderXDG(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{ProjectDir: tmp, Retries: -1, NoCache: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.VarsPath != filepath.Join(tmp, "config", "deployctl", "vars.json") {
		t.Fatalf("unexpected vars path %s", settings.VarsPath)
	}
	if settings.DeploymentsPath != filepath.Join(tmp, "data", "deployctl", "deployments.db") {
		t.Fatalf("unexpected deployments path %s", settings.DeploymentsPath)
	}
	if settings.CacheEnabled {
		t.Fatal("expected --no-cache to disable the cache")
	}
	if settings.OutputMode != "json" || settings.Timeout != 60*time.Second {
		t.Fatalf("unexpected defaults %+v", settings)
	}
}

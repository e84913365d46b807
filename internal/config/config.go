package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

const (
	EnvMnemonic     = "MNEMONIC"
	EnvDeployerPK   = "DEPLOYER_PK"
	EnvInfuraAPIKey = registry.AggregatorKeyEnv
	EnvNodeRealKey  = "NODEREAL_API_KEY"
	EnvChainID      = "CHAIN_ID"
	EnvDEX          = "DEX"
	EnvReportGas    = "REPORT_GAS"
	EnvDotenvPath   = "DOTENV_CONFIG_PATH"

	// DeployerPKVar is the secrets-store variable holding the deployer key.
	DeployerPKVar = "DEPLOYER_PK"
)

// Origins recorded in Settings.Sources for deployment inputs.
const (
	SourceFile   = "file"
	SourceDotenv = "dotenv"
	SourceEnv    = "env"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	ProjectDir     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	LogLevel       string
	NoCache        bool
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int
	LogLevel       string

	ProjectDir     string
	HardhatCommand []string
	EnvFile        string

	VarsPath            string
	VarsLockPath        string
	DeploymentsPath     string
	DeploymentsLockPath string
	CacheEnabled        bool
	CachePath           string
	CacheLockPath       string
	ExplorerRateLimit   float64

	Mnemonic       string
	DeployerPK     string
	InfuraAPIKey   string
	NodeRealAPIKey string
	ChainID        id.ChainID
	DEX            string
	ReportGas      bool
	ExplorerKeys   map[string]string
	// Sources maps an input variable name to the layer that last set it.
	Sources map[string]string
}

// SourceOf names the layer that supplied an input variable, empty when unset.
func (s Settings) SourceOf(name string) string {
	return s.Sources[name]
}

func (s *Settings) markEnv(name string) {
	if s.Sources[name] != SourceDotenv {
		s.Sources[name] = SourceEnv
	}
}

// HasForkChain reports whether CHAIN_ID selected a network for the in-process fork.
func (s Settings) HasForkChain() bool {
	return s.ChainID != 0
}

// ExplorerKeyLookup reads the captured explorer keys; it matches registry.LoadAPIKeys.
func (s Settings) ExplorerKeyLookup(name string) string {
	return s.ExplorerKeys[name]
}

type fileConfig struct {
	Output         string   `yaml:"output" toml:"output"`
	Timeout        string   `yaml:"timeout" toml:"timeout"`
	Retries        *int     `yaml:"retries" toml:"retries"`
	LogLevel       string   `yaml:"log_level" toml:"log_level"`
	ProjectDir     string   `yaml:"project_dir" toml:"project_dir"`
	HardhatCommand []string `yaml:"hardhat_command" toml:"hardhat_command"`
	EnvFile        string   `yaml:"env_file" toml:"env_file"`
	ChainID        *int64   `yaml:"chain_id" toml:"chain_id"`
	DEX            string   `yaml:"dex" toml:"dex"`
	ReportGas      *bool    `yaml:"report_gas" toml:"report_gas"`
	Cache          struct {
		Enabled  *bool  `yaml:"enabled" toml:"enabled"`
		Path     string `yaml:"path" toml:"path"`
		LockPath string `yaml:"lock_path" toml:"lock_path"`
	} `yaml:"cache" toml:"cache"`
	Stores struct {
		VarsPath        string `yaml:"vars_path" toml:"vars_path"`
		DeploymentsPath string `yaml:"deployments_path" toml:"deployments_path"`
	} `yaml:"stores" toml:"stores"`
	Explorer struct {
		RateLimit *float64          `yaml:"rate_limit" toml:"rate_limit"`
		Keys      map[string]string `yaml:"keys" toml:"keys"`
	} `yaml:"explorer" toml:"explorer"`
	Infura struct {
		APIKey    string `yaml:"api_key" toml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	} `yaml:"infura" toml:"infura"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if v := os.Getenv("DEPLOYCTL_PROJECT_DIR"); v != "" {
		settings.ProjectDir = v
	}
	if strings.TrimSpace(flags.ProjectDir) != "" {
		settings.ProjectDir = strings.TrimSpace(flags.ProjectDir)
	}
	if err := loadDotenv(flags.EnvFile, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ExplorerRateLimit <= 0 {
		settings.ExplorerRateLimit = 4
	}
	if len(settings.HardhatCommand) == 0 {
		settings.HardhatCommand = []string{"npx", "hardhat"}
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	cfgDir, err := defaultConfigDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:          "json",
		Timeout:             60 * time.Second,
		Retries:             2,
		LogLevel:            "warn",
		ProjectDir:          ".",
		HardhatCommand:      []string{"npx", "hardhat"},
		VarsPath:            filepath.Join(cfgDir, "vars.json"),
		VarsLockPath:        filepath.Join(cfgDir, "vars.lock"),
		DeploymentsPath:     filepath.Join(dataDir, "deployments.db"),
		DeploymentsLockPath: filepath.Join(dataDir, "deployments.lock"),
		CacheEnabled:        true,
		CachePath:           filepath.Join(dataDir, "cache.db"),
		CacheLockPath:       filepath.Join(dataDir, "cache.lock"),
		ExplorerRateLimit:   4,
		ExplorerKeys:        map[string]string{},
		Sources:             map[string]string{},
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("DEPLOYCTL_CONFIG"); v != "" {
		return v, nil
	}
	dir, err := defaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "deployctl"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "deployctl"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(buf, &cfg); err != nil {
			return fmt.Errorf("parse config toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.ProjectDir != "" {
		settings.ProjectDir = cfg.ProjectDir
	}
	if len(cfg.HardhatCommand) > 0 {
		settings.HardhatCommand = append([]string(nil), cfg.HardhatCommand...)
	}
	if cfg.EnvFile != "" {
		settings.EnvFile = cfg.EnvFile
	}
	if cfg.ChainID != nil {
		chainID, err := id.FromInt64(*cfg.ChainID)
		if err != nil {
			return err
		}
		settings.ChainID = chainID
		settings.Sources[EnvChainID] = SourceFile
	}
	if cfg.DEX != "" {
		settings.DEX = cfg.DEX
		settings.Sources[EnvDEX] = SourceFile
	}
	if cfg.ReportGas != nil {
		settings.ReportGas = *cfg.ReportGas
		settings.Sources[EnvReportGas] = SourceFile
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Stores.VarsPath != "" {
		settings.VarsPath = cfg.Stores.VarsPath
		settings.VarsLockPath = lockPathFor(cfg.Stores.VarsPath)
	}
	if cfg.Stores.DeploymentsPath != "" {
		settings.DeploymentsPath = cfg.Stores.DeploymentsPath
		settings.DeploymentsLockPath = lockPathFor(cfg.Stores.DeploymentsPath)
	}
	if cfg.Explorer.RateLimit != nil {
		settings.ExplorerRateLimit = *cfg.Explorer.RateLimit
	}
	for name, value := range cfg.Explorer.Keys {
		if strings.TrimSpace(value) != "" {
			settings.ExplorerKeys[strings.ToUpper(name)] = value
			settings.Sources[strings.ToUpper(name)] = SourceFile
		}
	}
	if cfg.Infura.APIKey != "" {
		settings.InfuraAPIKey = cfg.Infura.APIKey
		settings.Sources[EnvInfuraAPIKey] = SourceFile
	}
	if cfg.Infura.APIKeyEnv != "" {
		settings.InfuraAPIKey = os.Getenv(cfg.Infura.APIKeyEnv)
		settings.Sources[EnvInfuraAPIKey] = SourceEnv
	}

	return nil
}

// loadDotenv populates the process environment from the project .env file without
// overriding variables that are already set. A missing file is not an error.
func loadDotenv(flagPath string, settings *Settings) error {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvDotenvPath))
	}
	if path == "" {
		path = settings.EnvFile
	}
	if path == "" {
		path = ".env"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(settings.ProjectDir, path)
	}
	settings.EnvFile = path
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	for name, value := range values {
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		settings.Sources[name] = SourceDotenv
	}
	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("DEPLOYCTL_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("DEPLOYCTL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("DEPLOYCTL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("DEPLOYCTL_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("DEPLOYCTL_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("DEPLOYCTL_CACHE_PATH"); v != "" {
		settings.CachePath = v
		settings.CacheLockPath = lockPathFor(v)
	}
	if v := os.Getenv("DEPLOYCTL_VARS_PATH"); v != "" {
		settings.VarsPath = v
		settings.VarsLockPath = lockPathFor(v)
	}
	if v := os.Getenv("DEPLOYCTL_DEPLOYMENTS_PATH"); v != "" {
		settings.DeploymentsPath = v
		settings.DeploymentsLockPath = lockPathFor(v)
	}
	if v := os.Getenv("DEPLOYCTL_HARDHAT_COMMAND"); v != "" {
		settings.HardhatCommand = strings.Fields(v)
	}

	if v := os.Getenv(EnvMnemonic); v != "" {
		settings.Mnemonic = strings.TrimSpace(v)
		settings.markEnv(EnvMnemonic)
	}
	if v := os.Getenv(EnvDeployerPK); v != "" {
		settings.DeployerPK = strings.TrimSpace(v)
		settings.markEnv(EnvDeployerPK)
	}
	if v := os.Getenv(EnvInfuraAPIKey); v != "" {
		settings.InfuraAPIKey = strings.TrimSpace(v)
		settings.markEnv(EnvInfuraAPIKey)
	}
	if v := os.Getenv(EnvNodeRealKey); v != "" {
		settings.NodeRealAPIKey = strings.TrimSpace(v)
		settings.markEnv(EnvNodeRealKey)
	}
	if v := os.Getenv(EnvDEX); v != "" {
		settings.DEX = strings.TrimSpace(v)
		settings.markEnv(EnvDEX)
	}
	if v := os.Getenv(EnvReportGas); v != "" {
		settings.ReportGas = true
		settings.markEnv(EnvReportGas)
	}
	if v := strings.TrimSpace(os.Getenv(EnvChainID)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return clierr.New(clierr.CodeUnsupportedChain, fmt.Sprintf("%s %q is not a chain id", EnvChainID, v))
		}
		chainID, err := id.FromInt64(n)
		if err != nil {
			return err
		}
		settings.ChainID = chainID
		settings.markEnv(EnvChainID)
	}
	for _, name := range registry.ExplorerKeyVariables() {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			settings.ExplorerKeys[name] = v
			settings.markEnv(name)
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if f := strings.TrimSpace(part); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func lockPathFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".lock"
}

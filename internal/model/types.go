package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	// Missing lists the unset variables behind missing_secret and missing_api_key errors.
	Missing *MissingReport `json:"missing,omitempty"`
}

type MissingReport struct {
	Chains    []string `json:"chains,omitempty"`
	Variables []string `json:"variables"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Upstreams []UpstreamStatus `json:"upstreams,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

// UpstreamStatus describes one RPC endpoint, explorer or task invocation touched by a command.
type UpstreamStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ChainInfo struct {
	ChainID             int64    `json:"chain_id"`
	Network             string   `json:"network"`
	Local               bool     `json:"local"`
	AggregatorSupported bool     `json:"aggregator_supported"`
	FallbackRPCURLs     []string `json:"fallback_rpc_urls"`
	ExplorerAPIURL      string   `json:"explorer_api_url,omitempty"`
	ExplorerBrowserURL  string   `json:"explorer_browser_url,omitempty"`
	ExplorerKeyEnv      string   `json:"explorer_key_env,omitempty"`
	ExplorerKeyRequired bool     `json:"explorer_key_required"`
	ForkBlock           *uint64  `json:"fork_block,omitempty"`
}

type RPCResolution struct {
	ChainID int64  `json:"chain_id"`
	Network string `json:"network"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

type ForkResolution struct {
	Enabled     bool    `json:"enabled"`
	ChainID     int64   `json:"chain_id"`
	Network     string  `json:"network"`
	URL         string  `json:"url,omitempty"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
}

type ExplorerKeyResolution struct {
	ChainID     int64  `json:"chain_id"`
	Network     string `json:"network"`
	Variable    string `json:"variable,omitempty"`
	Key         string `json:"key"`
	Configured  bool   `json:"configured"`
	Placeholder bool   `json:"placeholder"`
	Revealed    bool   `json:"revealed"`
}

type ConfigCheck struct {
	OK             bool   `json:"ok"`
	AccountSource  string `json:"account_source"`
	Deployer       string `json:"deployer,omitempty"`
	Networks       int    `json:"networks"`
	ExplorerChains int    `json:"explorer_chains"`
	ForkChainID    int64  `json:"fork_chain_id,omitempty"`
	ForkURL        string `json:"fork_url,omitempty"`
	DEX            string `json:"dex,omitempty"`
	ReportGas      bool   `json:"report_gas"`
	EnvFile        string `json:"env_file"`
	ProjectDir     string `json:"project_dir"`
}

type ConfigExport struct {
	Path           string `json:"path,omitempty"`
	IncludeSecrets bool   `json:"include_secrets"`
	Networks       int    `json:"networks"`
	Config         any    `json:"config,omitempty"`
}

// EnvVar reports whether an input is set and where it came from. Values are never included.
type EnvVar struct {
	Name     string `json:"name"`
	Set      bool   `json:"set"`
	Source   string `json:"source,omitempty"`
	Required bool   `json:"required"`
	Purpose  string `json:"purpose"`
}

type VarEntry struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Set   bool   `json:"set"`
}

type VarChange struct {
	Name    string `json:"name"`
	Action  string `json:"action"`
	Changed bool   `json:"changed"`
	Path    string `json:"path"`
}

// Package registry resolves per-chain RPC endpoints and block-explorer credentials from
// static tables plus environment-supplied secrets. A Registry is validated when it is
// built and never mutated afterwards, so it is safe for concurrent readers.
package registry

import (
	"fmt"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/id"
)

const nodeRealKeyEnv = "NODEREAL_API_KEY"

// AggregatorKeyEnv names the variable holding the Infura key.
const AggregatorKeyEnv = "INFURA_API_KEY"

type Options struct {
	// Profiles overrides the built-in chain tables. Nil means DefaultProfiles().
	Profiles []ChainProfile
	APIKeys  APIKeyTable
	// ForkBlocks overrides the pinned fork heights. Nil means DefaultForkBlocks().
	ForkBlocks    map[id.ChainID]uint64
	AggregatorKey string
	NodeRealKey   string
	// RequireAggregatorKey makes a missing INFURA_API_KEY part of the startup report.
	RequireAggregatorKey bool
}

type ForkTarget struct {
	URL         string  `json:"url"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
}

type Registry struct {
	profiles      map[id.ChainID]ChainProfile
	byName        map[string]id.ChainID
	order         []id.ChainID
	keys          APIKeyTable
	forkBlocks    map[id.ChainID]uint64
	aggregatorKey string
}

// New copies the tables, checks their shape and runs the key integrity pass. Every missing
// key is reported in one error; nothing is deferred to first use.
func New(opts Options) (*Registry, error) {
	profiles := opts.Profiles
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	forkBlocks := opts.ForkBlocks
	if forkBlocks == nil {
		forkBlocks = DefaultForkBlocks()
	}

	r := &Registry{
		profiles:      make(map[id.ChainID]ChainProfile, len(profiles)),
		byName:        make(map[string]id.ChainID, len(profiles)),
		keys:          APIKeyTable{},
		forkBlocks:    map[id.ChainID]uint64{},
		aggregatorKey: strings.TrimSpace(opts.AggregatorKey),
	}
	for k, v := range opts.APIKeys {
		r.keys[k] = v
	}
	for k, v := range forkBlocks {
		r.forkBlocks[k] = v
	}

	report := &clierr.MissingAPIKeyError{}
	nodeRealKey := strings.TrimSpace(opts.NodeRealKey)
	for _, p := range profiles {
		if !id.IsSupported(p.ID) {
			return nil, clierr.UnsupportedChain(p.ID.Int64())
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("chain %s has no name", p.ID))
		}
		if other, dup := r.byName[name]; dup {
			return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("chain name %q used by both %s and %s", name, other, p.ID))
		}
		if p.ID != id.Hardhat && len(nonEmpty(p.FallbackRPCURLs)) == 0 {
			return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("chain %s has no fallback rpc url", name))
		}

		profile := p
		profile.Name = name
		profile.FallbackRPCURLs = nonEmpty(p.FallbackRPCURLs)
		if p.Explorer != nil {
			explorer := *p.Explorer
			if strings.Contains(explorer.APIURL, nodeRealKeyToken) {
				if nodeRealKey == "" {
					report.Add(name, nodeRealKeyEnv)
				}
				explorer.APIURL = strings.ReplaceAll(explorer.APIURL, nodeRealKeyToken, nodeRealKey)
			}
			profile.Explorer = &explorer
		}
		r.profiles[p.ID] = profile
		r.byName[name] = p.ID
		r.order = append(r.order, p.ID)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })

	if err := VerifyIntegrity(r.Profiles(), r.keys); err != nil {
		if cErr, ok := clierr.As(err); ok {
			if nested, ok := cErr.Cause.(*clierr.MissingAPIKeyError); ok {
				report.Merge(nested)
			}
		}
	}
	if opts.RequireAggregatorKey && r.aggregatorKey == "" {
		report.Add("", AggregatorKeyEnv)
	}
	if !report.Empty() {
		return nil, clierr.MissingAPIKeys(report)
	}
	return r, nil
}

// VerifyIntegrity asserts that every chain with an explorer profile has a key entry. Key
// required explorers also reject empty and placeholder values. All offenders are reported
// together.
func VerifyIntegrity(profiles []ChainProfile, keys APIKeyTable) error {
	report := &clierr.MissingAPIKeyError{}
	for _, p := range profiles {
		if p.Explorer == nil {
			continue
		}
		key, ok := keys[p.ID]
		missing := !ok
		if ok && p.Explorer.KeyRequired {
			missing = strings.TrimSpace(key) == "" || isPlaceholderKey(key)
		}
		if !missing {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.ID.String()
		}
		envName, _ := ExplorerKeyEnv(p.ID)
		report.Add(name, envName)
	}
	if report.Empty() {
		return nil
	}
	return clierr.MissingAPIKeys(report)
}

func (r *Registry) profile(chainID id.ChainID) (ChainProfile, error) {
	if !id.IsSupported(chainID) {
		return ChainProfile{}, clierr.UnsupportedChain(chainID.Int64())
	}
	p, ok := r.profiles[chainID]
	if !ok {
		return ChainProfile{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("chain %s has no profile", chainID))
	}
	return p, nil
}

// ResolveRPCURL prefers the aggregator when it serves the chain and a key is configured,
// otherwise the first fallback URL.
func (r *Registry) ResolveRPCURL(chainID id.ChainID) (string, error) {
	p, err := r.profile(chainID)
	if err != nil {
		return "", err
	}
	if p.AggregatorSupported && r.aggregatorKey != "" {
		return fmt.Sprintf(AggregatorURLTemplate, p.Name, r.aggregatorKey), nil
	}
	if len(p.FallbackRPCURLs) > 0 {
		return p.FallbackRPCURLs[0], nil
	}
	return "", clierr.New(clierr.CodeConfig, fmt.Sprintf("no rpc url configured for %s", p.Name))
}

// ResolveExplorerKey returns the verification key for a chain. Explorer-profile chains were
// validated by New; other chains resolve to an empty key when their optional variable is unset.
func (r *Registry) ResolveExplorerKey(chainID id.ChainID) (string, error) {
	if _, err := r.profile(chainID); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.keys[chainID]), nil
}

// APIKey is the raw table value, empty when unset.
func (r *Registry) APIKey(chainID id.ChainID) string {
	return r.keys[chainID]
}

// ResolveForkTarget re-validates the chain id rather than trusting an earlier guard.
func (r *Registry) ResolveForkTarget(chainID id.ChainID) (ForkTarget, error) {
	if !id.IsSupported(chainID) {
		return ForkTarget{}, clierr.UnsupportedChain(chainID.Int64())
	}
	if id.IsLocal(chainID) {
		return ForkTarget{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("cannot fork local network %s", chainID))
	}
	url, err := r.ResolveRPCURL(chainID)
	if err != nil {
		return ForkTarget{}, err
	}
	target := ForkTarget{URL: url}
	if block, ok := r.forkBlocks[chainID]; ok {
		b := block
		target.BlockNumber = &b
	}
	return target, nil
}

// Profile returns a copy of a chain's profile.
func (r *Registry) Profile(chainID id.ChainID) (ChainProfile, error) {
	p, err := r.profile(chainID)
	if err != nil {
		return ChainProfile{}, err
	}
	return copyProfile(p), nil
}

// Profiles returns copies of every profile ordered by chain id.
func (r *Registry) Profiles() []ChainProfile {
	out := make([]ChainProfile, 0, len(r.order))
	for _, chainID := range r.order {
		out = append(out, copyProfile(r.profiles[chainID]))
	}
	return out
}

// ExplorerChains lists the chains with a custom explorer profile.
func (r *Registry) ExplorerChains() []id.ChainID {
	out := []id.ChainID{}
	for _, chainID := range r.order {
		if r.profiles[chainID].Explorer != nil {
			out = append(out, chainID)
		}
	}
	return out
}

// ExplorerAPIURL returns the custom explorer API, falling back to the verify plugin's
// built-in explorers.
func (r *Registry) ExplorerAPIURL(chainID id.ChainID) (string, bool) {
	if p, ok := r.profiles[chainID]; ok && p.Explorer != nil {
		return p.Explorer.APIURL, true
	}
	v, ok := builtinExplorerAPIs[chainID]
	return v, ok
}

func (r *Registry) NetworkName(chainID id.ChainID) (string, bool) {
	p, ok := r.profiles[chainID]
	if !ok {
		return "", false
	}
	return p.Name, true
}

// ChainByName maps a network name back to its chain id.
func (r *Registry) ChainByName(name string) (id.ChainID, bool) {
	chainID, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return chainID, ok
}

// ParseChain accepts a network name, a numeric chain id or an enum constant name.
func (r *Registry) ParseChain(input string) (id.ChainID, error) {
	if chainID, ok := r.ChainByName(input); ok {
		return chainID, nil
	}
	return id.Parse(input)
}

func copyProfile(p ChainProfile) ChainProfile {
	out := p
	out.FallbackRPCURLs = append([]string(nil), p.FallbackRPCURLs...)
	if p.Explorer != nil {
		e := *p.Explorer
		out.Explorer = &e
	}
	return out
}

func nonEmpty(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if v := strings.TrimSpace(u); v != "" {
			out = append(out, v)
		}
	}
	return out
}

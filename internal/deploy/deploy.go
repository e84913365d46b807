// Package deploy runs ignition modules against a configured network and records the
// resulting contract addresses.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ggonzalez94/deployctl/internal/deployments"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/id"
)

type Module struct {
	ID        string   `json:"id"`
	Contracts []string `json:"contracts"`
}

// MultiRewards deploys the rewards factory; pools are created through the factory later.
var MultiRewards = Module{ID: "MultiRewards", Contracts: []string{"MultiRewardsFactory"}}

var modules = map[string]Module{
	MultiRewards.ID: MultiRewards,
}

func Modules() []Module {
	out := make([]Module, 0, len(modules))
	for _, m := range modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func LookupModule(name string) (Module, error) {
	if m, ok := modules[strings.TrimSpace(name)]; ok {
		return m, nil
	}
	return Module{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown ignition module %q", name))
}

// Path is the module source relative to the project root.
func (m Module) Path() string {
	return filepath.ToSlash(filepath.Join("ignition", "modules", m.ID+".ts"))
}

type Target struct {
	Network string
	ChainID id.ChainID
}

type Deployed struct {
	Future   string `json:"future"`
	Contract string `json:"contract"`
	Address  string `json:"address"`
	RecordID string `json:"record_id,omitempty"`
}

type Result struct {
	Network   string     `json:"network"`
	ChainID   int64      `json:"chain_id"`
	Module    string     `json:"module"`
	Contracts []Deployed `json:"contracts"`
	Recorded  bool       `json:"recorded"`
}

type Recorder interface {
	Save(rec deployments.Record) (deployments.Record, error)
}

type Runner struct {
	Tasks  hardhat.TaskRunner
	Store  Recorder
	Logger *zap.Logger
}

func (r Runner) Deploy(ctx context.Context, module Module, target Target) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	result := Result{
		Network:   target.Network,
		ChainID:   target.ChainID.Int64(),
		Module:    module.ID,
		Contracts: []Deployed{},
	}
	if _, err := r.Tasks.Run(ctx, "ignition", "deploy", module.Path(), "--network", target.Network); err != nil {
		return result, err
	}
	// The in-process network keeps its journal in memory only.
	if target.Network == hardhat.HardhatNetwork {
		logger.Info("ephemeral deployment not recorded", zap.String("module", module.ID))
		return result, nil
	}

	addresses, err := ReadDeployedAddresses(r.Tasks.ProjectDir, target.ChainID)
	if err != nil {
		return result, err
	}
	for _, future := range sortedKeys(addresses) {
		moduleID, contract, ok := strings.Cut(future, "#")
		if !ok || moduleID != module.ID {
			continue
		}
		deployed := Deployed{Future: future, Contract: contract, Address: addresses[future]}
		if r.Store != nil {
			rec, err := r.Store.Save(deployments.Record{
				Network:  target.Network,
				ChainID:  target.ChainID.Int64(),
				Module:   module.ID,
				Contract: contract,
				Address:  deployed.Address,
			})
			if err != nil {
				return result, err
			}
			deployed.Address = rec.Address
			deployed.RecordID = rec.ID
			result.Recorded = true
		}
		logger.Info("contract deployed", zap.String("network", target.Network), zap.String("contract", contract), zap.String("address", deployed.Address))
		result.Contracts = append(result.Contracts, deployed)
	}
	if len(result.Contracts) == 0 {
		return result, clierr.New(clierr.CodeTaskFailed, fmt.Sprintf("no addresses for module %s in deployment journal", module.ID))
	}
	return result, nil
}

// DeployedAddressesPath is where ignition writes the future-id to address map for a chain.
func DeployedAddressesPath(projectDir string, chainID id.ChainID) string {
	return filepath.Join(projectDir, "ignition", "deployments", fmt.Sprintf("chain-%d", chainID.Int64()), "deployed_addresses.json")
}

func ReadDeployedAddresses(projectDir string, chainID id.ChainID) (map[string]string, error) {
	path := DeployedAddressesPath(projectDir, chainID)
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.Wrap(clierr.CodeTaskFailed, "deployment journal not found", err)
		}
		return nil, fmt.Errorf("read deployed addresses: %w", err)
	}
	var out map[string]string
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, clierr.Wrap(clierr.CodeTaskFailed, "parse deployed addresses", err)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

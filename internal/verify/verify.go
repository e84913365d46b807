// Package verify publishes contract sources to block explorers through the task runner
// and checks their verification status over the explorer API.
package verify

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

type Request struct {
	ContractPath    string   `json:"contract"`
	Address         string   `json:"address"`
	ConstructorArgs []string `json:"constructor_args"`
}

var contractPathPattern = regexp.MustCompile(`^[^:\s]+\.sol:[A-Za-z_][A-Za-z0-9_]*$`)

// CheckPreconditions runs before any network or explorer call.
func CheckPreconditions(network string, req Request) error {
	if strings.TrimSpace(network) == "" || network == hardhat.HardhatNetwork {
		return clierr.VerifyPrecondition("verification needs an explorer-backed network; pass --network")
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return clierr.VerifyPrecondition("contract address is not defined")
	}
	if !common.IsHexAddress(address) {
		return clierr.VerifyPrecondition(fmt.Sprintf("contract address %q is not a valid EVM address", address))
	}
	if !contractPathPattern.MatchString(strings.TrimSpace(req.ContractPath)) {
		return clierr.VerifyPrecondition(fmt.Sprintf("contract %q must look like contracts/File.sol:Name", req.ContractPath))
	}
	return nil
}

// ContractCaller is the read-only subset of ethclient used to rebuild constructor args.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var multiRewardsABI = mustABI(registry.MultiRewardsABI)

// ReadsConstructorArgs reports whether ConstructorArgs needs on-chain calls for the contract.
func ReadsConstructorArgs(contractPath string) bool {
	return contractPath == registry.MultiRewardsContractPath
}

// ContractName is the part of a fully qualified path after the colon.
func ContractName(contractPath string) string {
	if _, name, ok := strings.Cut(contractPath, ":"); ok {
		return name
	}
	return contractPath
}

// ConstructorArgs reads the deployed contract's state to recover the arguments it was
// constructed with. Contracts without constructor arguments return nil.
func ConstructorArgs(ctx context.Context, caller ContractCaller, contractPath string, address common.Address) ([]string, error) {
	switch contractPath {
	case registry.MultiRewardsContractPath:
		owner, err := callAddress(ctx, caller, multiRewardsABI, address, "owner")
		if err != nil {
			return nil, err
		}
		stakingToken, err := callAddress(ctx, caller, multiRewardsABI, address, "stakingToken")
		if err != nil {
			return nil, err
		}
		return []string{owner.Hex(), stakingToken.Hex()}, nil
	default:
		return nil, nil
	}
}

func callAddress(ctx context.Context, caller ContractCaller, parsed abi.ABI, target common.Address, method string) (common.Address, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil || len(values) != 1 {
		return common.Address{}, clierr.Wrap(clierr.CodeVerifyPrecondition, fmt.Sprintf("decode %s at %s", method, target.Hex()), err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeVerifyPrecondition, fmt.Sprintf("%s returned a non-address value", method))
	}
	return addr, nil
}

type Result struct {
	Network         string   `json:"network"`
	Contract        string   `json:"contract"`
	Address         string   `json:"address"`
	ConstructorArgs []string `json:"constructor_args"`
	AlreadyVerified bool     `json:"already_verified"`
	ExplorerURL     string   `json:"explorer_url,omitempty"`
}

type Runner struct {
	Tasks  hardhat.TaskRunner
	Logger *zap.Logger
}

var explorerLinkPattern = regexp.MustCompile(`https?://\S+#code`)

func (r Runner) Verify(ctx context.Context, network string, req Request) (Result, error) {
	if err := CheckPreconditions(network, req); err != nil {
		return Result{}, err
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	address := common.HexToAddress(req.Address).Hex()
	args := []string{"verify", "--network", network, "--contract", req.ContractPath, address}
	args = append(args, req.ConstructorArgs...)

	logger.Info("verifying contract", zap.String("network", network), zap.String("contract", req.ContractPath), zap.String("address", address))
	res, err := r.Tasks.Run(ctx, args...)
	if err != nil {
		return Result{}, err
	}
	out := Result{
		Network:         network,
		Contract:        req.ContractPath,
		Address:         address,
		ConstructorArgs: append([]string{}, req.ConstructorArgs...),
		AlreadyVerified: strings.Contains(strings.ToLower(res.Output), "already been verified") || strings.Contains(strings.ToLower(res.Output), "already verified"),
	}
	if link := explorerLinkPattern.FindString(res.Output); link != "" {
		out.ExplorerURL = link
	}
	return out, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

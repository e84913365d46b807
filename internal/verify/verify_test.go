package verify

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

const testAddress = "0x52908400098527886e0f7030069857d2e4169ee7"

func TestCheckPreconditions(t *testing.T) {
	valid := Request{ContractPath: registry.MultiRewardsContractPath, Address: testAddress}
	if err := CheckPreconditions("base-mainnet", valid); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name    string
		network string
		req     Request
	}{
		{"hardhat network", "hardhat", valid},
		{"no network", "", valid},
		{"empty address", "base-mainnet", Request{ContractPath: registry.MultiRewardsContractPath}},
		{"bad address", "base-mainnet", Request{ContractPath: registry.MultiRewardsContractPath, Address: "0x1234"}},
		{"bad contract path", "base-mainnet", Request{ContractPath: "MultiRewards", Address: testAddress}},
	}
	for _, tc := range cases {
		if err := CheckPreconditions(tc.network, tc.req); !clierr.HasCode(err, clierr.CodeVerifyPrecondition) {
			t.Fatalf("%s: expected precondition error, got %v", tc.name, err)
		}
	}
}

type fakeCaller struct {
	results map[string][]byte
	calls   int
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for name, method := range multiRewardsABI.Methods {
		if strings.HasPrefix(string(msg.Data), string(method.ID)) {
			return f.results[name], nil
		}
	}
	return nil, errors.New("unknown selector")
}

func packAddress(t *testing.T, method string, addr common.Address) []byte {
	t.Helper()
	out, err := multiRewardsABI.Methods[method].Outputs.Pack(addr)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return out
}

func TestConstructorArgsForMultiRewards(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	staking := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	caller := &fakeCaller{results: map[string][]byte{
		"owner":        packAddress(t, "owner", owner),
		"stakingToken": packAddress(t, "stakingToken", staking),
	}}
	args, err := ConstructorArgs(context.Background(), caller, registry.MultiRewardsContractPath, common.HexToAddress(testAddress))
	if err != nil {
		t.Fatalf("ConstructorArgs failed: %v", err)
	}
	if len(args) != 2 || args[0] != owner.Hex() || args[1] != staking.Hex() {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestConstructorArgsOtherContracts(t *testing.T) {
	caller := &fakeCaller{}
	args, err := ConstructorArgs(context.Background(), caller, registry.MultiRewardsFactoryContractPath, common.HexToAddress(testAddress))
	if err != nil || args != nil || caller.calls != 0 {
		t.Fatalf("expected no calls for factory, got args=%v err=%v calls=%d", args, err, caller.calls)
	}
}

func TestConstructorArgsCallFailure(t *testing.T) {
	caller := &fakeCaller{err: errors.New("dial tcp: refused")}
	_, err := ConstructorArgs(context.Background(), caller, registry.MultiRewardsContractPath, common.HexToAddress(testAddress))
	if !clierr.HasCode(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestRunnerBuildsVerifyTask(t *testing.T) {
	var got []string
	runner := Runner{Tasks: hardhat.TaskRunner{
		Command: []string{"npx", "hardhat"},
		Exec: func(_ context.Context, _ string, _ []string, _ string, args ...string) ([]byte, error) {
			got = args
			return []byte("Successfully verified contract MultiRewards on the block explorer.\nhttps://basescan.org/address/0x52908400098527886E0F7030069857D2E4169EE7#code\n"), nil
		},
	}}
	res, err := runner.Verify(context.Background(), "base-mainnet", Request{
		ContractPath:    registry.MultiRewardsContractPath,
		Address:         testAddress,
		ConstructorArgs: []string{"0xaa", "0xbb"},
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	want := "hardhat verify --network base-mainnet --contract contracts/MultiRewards.sol:MultiRewards 0x52908400098527886E0F7030069857D2E4169EE7 0xaa 0xbb"
	if strings.Join(got, " ") != want {
		t.Fatalf("unexpected args\n got: %s\nwant: %s", strings.Join(got, " "), want)
	}
	if res.AlreadyVerified || res.ExplorerURL != "https://basescan.org/address/0x52908400098527886E0F7030069857D2E4169EE7#code" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunnerRejectsBeforeTask(t *testing.T) {
	called := false
	runner := Runner{Tasks: hardhat.TaskRunner{
		Command: []string{"npx", "hardhat"},
		Exec: func(context.Context, string, []string, string, ...string) ([]byte, error) {
			called = true
			return nil, nil
		},
	}}
	_, err := runner.Verify(context.Background(), "hardhat", Request{ContractPath: registry.MultiRewardsContractPath, Address: testAddress})
	if !clierr.HasCode(err, clierr.CodeVerifyPrecondition) || called {
		t.Fatalf("expected precondition failure without task, got err=%v called=%v", err, called)
	}
}

func TestRunnerDetectsAlreadyVerified(t *testing.T) {
	runner := Runner{Tasks: hardhat.TaskRunner{
		Command: []string{"npx", "hardhat"},
		Exec: func(context.Context, string, []string, string, ...string) ([]byte, error) {
			return []byte("The contract 0x5290 has already been verified on the block explorer."), nil
		},
	}}
	res, err := runner.Verify(context.Background(), "bsc", Request{ContractPath: registry.MultiRewardsFactoryContractPath, Address: testAddress})
	if err != nil || !res.AlreadyVerified {
		t.Fatalf("expected already verified, got %+v err=%v", res, err)
	}
}

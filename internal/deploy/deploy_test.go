package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ggonzalez94/deployctl/internal/deployments"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/hardhat"
	"github.com/ggonzalez94/deployctl/internal/id"
)

func writeJournal(t *testing.T, dir string, chainID id.ChainID, body string) {
	t.Helper()
	path := DeployedAddressesPath(dir, chainID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}
}

func newRunner(t *testing.T, dir string, calls *[]string) (Runner, *deployments.Store) {
	t.Helper()
	store, err := deployments.Open(filepath.Join(dir, "d.db"), filepath.Join(dir, "d.lock"))
	if err != nil {
		t.Fatalf("Open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return Runner{
		Tasks: hardhat.TaskRunner{
			Command:    []string{"npx", "hardhat"},
			ProjectDir: dir,
			Exec: func(_ context.Context, _ string, _ []string, name string, args ...string) ([]byte, error) {
				*calls = append(*calls, name+" "+strings.Join(args, " "))
				return nil, nil
			},
		},
		Store: store,
	}, store
}

func TestDeployRecordsJournalAddresses(t *testing.T) {
	dir := t.TempDir()
	var calls []string
	runner, store := newRunner(t, dir, &calls)
	writeJournal(t, dir, id.BaseMainnet, `{"MultiRewards#MultiRewardsFactory":"0x52908400098527886e0f7030069857d2e4169ee7","Other#Thing":"0x0000000000000000000000000000000000000001"}`)

	res, err := runner.Deploy(context.Background(), MultiRewards, Target{Network: "base-mainnet", ChainID: id.BaseMainnet})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if len(calls) != 1 || calls[0] != "npx hardhat ignition deploy ignition/modules/MultiRewards.ts --network base-mainnet" {
		t.Fatalf("unexpected task invocation %v", calls)
	}
	if len(res.Contracts) != 1 || res.Contracts[0].Contract != "MultiRewardsFactory" || !res.Recorded {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, ok, err := store.Latest("base-mainnet", "MultiRewardsFactory")
	if err != nil || !ok {
		t.Fatalf("expected stored record, ok=%v err=%v", ok, err)
	}
	if rec.Address != "0x52908400098527886E0F7030069857D2E4169EE7" || rec.ChainID != 8453 || rec.Module != "MultiRewards" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestDeployHardhatNotRecorded(t *testing.T) {
	dir := t.TempDir()
	var calls []string
	runner, store := newRunner(t, dir, &calls)
	res, err := runner.Deploy(context.Background(), MultiRewards, Target{Network: hardhat.HardhatNetwork, ChainID: id.Hardhat})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if res.Recorded || len(res.Contracts) != 0 {
		t.Fatalf("expected nothing recorded, got %+v", res)
	}
	all, err := store.List("", 10)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty store, got %v %v", all, err)
	}
}

func TestDeployMissingJournal(t *testing.T) {
	dir := t.TempDir()
	var calls []string
	runner, _ := newRunner(t, dir, &calls)
	_, err := runner.Deploy(context.Background(), MultiRewards, Target{Network: "bsc", ChainID: id.BSCMainnet})
	if !clierr.HasCode(err, clierr.CodeTaskFailed) {
		t.Fatalf("expected task failed error, got %v", err)
	}
}

func TestLookupModule(t *testing.T) {
	m, err := LookupModule("MultiRewards")
	if err != nil || m.Path() != "ignition/modules/MultiRewards.ts" {
		t.Fatalf("unexpected module %+v err=%v", m, err)
	}
	if _, err := LookupModule("Nope"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if len(Modules()) != 1 {
		t.Fatalf("expected one module, got %v", Modules())
	}
}

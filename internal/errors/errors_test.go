package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected 0 for nil error, got %d", got)
	}
	if got := ExitCode(fmt.Errorf("plain")); got != int(CodeInternal) {
		t.Fatalf("expected internal code for plain error, got %d", got)
	}
	wrapped := fmt.Errorf("outer: %w", UnsupportedChain(999))
	if got := ExitCode(wrapped); got != int(CodeUnsupportedChain) {
		t.Fatalf("expected unsupported chain code, got %d", got)
	}
}

func TestHasCodeFollowsCauses(t *testing.T) {
	err := Wrap(CodeUsage, "load configuration", MissingSecret("MNEMONIC", "DEPLOYER_PK"))
	if !HasCode(err, CodeMissingSecret) {
		t.Fatal("expected nested missing secret code to be found")
	}
	if HasCode(err, CodeMissingAPIKey) {
		t.Fatal("did not expect missing api key code")
	}
}

func TestMissingAPIKeyErrorAggregates(t *testing.T) {
	report := &MissingAPIKeyError{}
	if !report.Empty() {
		t.Fatal("expected empty report")
	}
	report.Add("ink-sepolia", "")
	report.Add("base-mainnet", "BASESCAN_API_KEY")
	report.Add("base-mainnet", "BASESCAN_API_KEY")

	other := &MissingAPIKeyError{}
	other.Add("", "INFURA_API_KEY")
	report.Merge(other)

	if len(report.Chains) != 2 || report.Chains[0] != "base-mainnet" {
		t.Fatalf("unexpected chains: %#v", report.Chains)
	}
	msg := MissingAPIKeys(report).Error()
	for _, want := range []string{"ink-sepolia", "base-mainnet", "BASESCAN_API_KEY", "INFURA_API_KEY"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

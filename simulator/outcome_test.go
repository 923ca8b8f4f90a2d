package simulator

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// mustPackError builds a Solidity-standard Error(string) revert payload.
// Packing a function literally named "Error" with a single string input
// produces the same selector (0x08c379a0) Solidity's compiler emits for the
// built-in revert reason string, since both derive from keccak256("Error(string)").
func mustPackError(t *testing.T, reason string) []byte {
	t.Helper()
	errorABI, err := abi.JSON(strings.NewReader(`[{"name":"Error","type":"function","inputs":[{"name":"reason","type":"string"}]}]`))
	if err != nil {
		t.Fatalf("parse Error(string) ABI: %v", err)
	}
	packed, err := errorABI.Pack("Error", reason)
	if err != nil {
		t.Fatalf("pack Error(string): %v", err)
	}
	return packed
}

func TestClassifyRevert_SolidityError(t *testing.T) {
	data := mustPackError(t, "TRANSFER_FROM_FAILED")
	reason := classifyRevert(data)
	if !strings.Contains(reason, "TRANSFER_FROM_FAILED") {
		t.Fatalf("expected decoded reason to contain TRANSFER_FROM_FAILED, got %q", reason)
	}
}

func TestClassifyRevert_MarkerFallback(t *testing.T) {
	// Raw revert data containing the hex of "bot" but not shaped as
	// Error(string) - exercises the marker-substring path.
	data, err := hex.DecodeString("deadbeef626f74deadbeef")
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	reason := classifyRevert(data)
	if reason != "Bot detected / Blacklisted" {
		t.Fatalf("expected marker match, got %q", reason)
	}
}

func TestClassifyRevert_HexDumpFallback(t *testing.T) {
	// Fewer than 68 bytes and no marker substring: base spec §8's boundary
	// case falls straight through to the raw hex dump.
	data := []byte{0x01, 0x02, 0x03, 0x04}
	reason := classifyRevert(data)
	if !strings.HasPrefix(reason, "Revert: 0x01020304") {
		t.Fatalf("expected hex dump fallback, got %q", reason)
	}
}

func TestClassifyHalt(t *testing.T) {
	reason := classifyHalt(errTestHalt{})
	if !strings.HasPrefix(reason, "Halted: ") {
		t.Fatalf("expected Halted: prefix, got %q", reason)
	}
}

type errTestHalt struct{}

func (errTestHalt) Error() string { return "out of gas" }

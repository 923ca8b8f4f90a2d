package simulator

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Status tags the three ways a simulated call can conclude (base spec
// §4.5 "Sell with revert detection" — the same tagging applies to every
// step, not just Sell). Represented as a closed enum rather than an
// interface hierarchy: base spec §9 notes this is a tagged sum with no
// virtual dispatch required.
type Status int

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusHalt
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRevert:
		return "revert"
	case StatusHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one simulated call.
type Outcome struct {
	Status     Status
	ReturnData []byte
	GasUsed    uint64
	Reason     string // populated for Revert and Halt only
}

// solidityErrorSelector is the 4-byte selector of Solidity's built-in
// `Error(string)` revert encoding.
var solidityErrorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// revertMarkers are raw hex substrings that commonly appear in
// honeypot/blacklist revert payloads that don't use the standard
// Error(string) ABI encoding (custom errors, raw require reverts without a
// message, or obfuscated bytecode).
var revertMarkers = []struct {
	marker string
	reason string
}{
	{"626f74", "Bot detected / Blacklisted"},          // "bot"
	{"74726164696e67", "Trading not enabled"},          // "trading"
	{"7472616e73666572", "Transfer blocked"},           // "transfer"
}

// classifyRevert implements base spec §4.5's exact revert-reason decoding
// order: Solidity Error(string) ABI decode, then marker substrings, then a
// raw hex dump fallback. Revert data shorter than 68 bytes (4-byte selector
// + 32-byte offset + 32-byte length, the minimum any Error(string) payload
// needs) skips straight to the marker/hex-dump path per base spec
// §8's boundary case.
func classifyRevert(data []byte) string {
	if len(data) >= 68 && hasSelector(data, solidityErrorSelector) {
		if reason, err := abi.UnpackRevert(data); err == nil {
			return reason
		}
	}

	lowerHex := strings.ToLower(hex.EncodeToString(data))
	for _, m := range revertMarkers {
		if strings.Contains(lowerHex, m.marker) {
			return m.reason
		}
	}

	dumpLen := len(data)
	if dumpLen > 32 {
		dumpLen = 32
	}
	return "Revert: 0x" + hex.EncodeToString(data[:dumpLen])
}

func hasSelector(data, selector []byte) bool {
	if len(data) < len(selector) {
		return false
	}
	for i := range selector {
		if data[i] != selector[i] {
			return false
		}
	}
	return true
}

// classifyHalt formats a non-revert VM failure (out-of-gas, invalid jump,
// stack errors, ...) per base spec §4.5's "Halted: <opcode/reason>" format.
func classifyHalt(vmErr error) string {
	return "Halted: " + vmErr.Error()
}

// Package scanner implements the Bytecode Scanner: a static pass over a
// token's deployed runtime bytecode looking for function selectors and
// string-constant patterns associated with access-control abuse (bot bans,
// blacklists, trading toggles).
//
// Grounded on other_examples' AditS-H-VIGILUM pattern detector
// (backend/internal/scanner/patterns.go): a flat, data-driven table of
// named patterns checked against an encoded byte string, rather than a
// bytecode disassembler. This module's patterns are selectors and
// substrings instead of source-level regexes, but the shape — a static
// pattern table walked once per scan, findings accumulated as labeled
// strings — is the same.
package scanner

import (
	"encoding/hex"
	"strings"
)

// Penalty is the fixed access-control penalty applied when any dangerous
// pattern is found. It saturates here: base spec §4.4 specifies a single
// flat penalty regardless of how many patterns match.
const Penalty = 50

// selectorPatterns are 4-byte function selectors (hex, no 0x prefix) known
// to gate bot-banning, blacklisting, or trading-toggle functions. Selectors
// appear verbatim as hex substrings in the contract's function dispatcher,
// so a substring search on the lowercase-hex-encoded bytecode is sufficient
// — no disassembly required.
var selectorPatterns = []struct {
	Selector string
	Label    string
}{
	{"974d396d", "setBots"},
	{"3d18678e", "setBot"},
	{"e4997dc5", "blacklistAddress"},
	{"44337ea1", "addToBlacklist"},
	{"b515566a", "isBot"},
	{"0ecb93c0", "setBlacklist"},
	{"09218e91", "addBot"},
	{"363bf964", "delBot"},
	{"8a8c523c", "setTradingEnabled"},
	{"ec28438a", "setMaxTxAmount"},
	{"f1d5f517", "setMaxWalletSize"},
}

// stringPatterns are UTF-8 byte sequences searched for in the bytecode's
// string-constant pool (storage variable names, revert messages).
var stringPatterns = []struct {
	Pattern string
	Finding string
}{
	{"bots", "Blacklist storage pattern detected"},
	{"blacklist", "Blacklist storage pattern detected"},
}

// Result is the outcome of one scan.
type Result struct {
	Penalty  int
	Findings []string
}

// Scan inspects runtimeBytecode for access-control red flags. An empty
// bytecode (e.g. an EOA rather than a contract) yields a zero-penalty
// Result with no findings, silently.
func Scan(runtimeBytecode []byte) Result {
	if len(runtimeBytecode) == 0 {
		return Result{}
	}

	hexEncoded := hex.EncodeToString(runtimeBytecode)
	lowerHex := strings.ToLower(hexEncoded)

	var findings []string
	penalty := 0

	for _, sp := range selectorPatterns {
		if strings.Contains(lowerHex, sp.Selector) {
			penalty = Penalty
			findings = append(findings, sp.Label+" detected")
		}
	}

	lowerRaw := strings.ToLower(string(runtimeBytecode))
	seenStringFinding := false
	for _, sp := range stringPatterns {
		if seenStringFinding {
			break
		}
		if strings.Contains(lowerRaw, sp.Pattern) {
			penalty = Penalty
			findings = append(findings, sp.Finding)
			seenStringFinding = true
		}
	}

	return Result{Penalty: penalty, Findings: findings}
}

package simulator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/evmsentry/pers/pkgerr"
	"github.com/evmsentry/pers/rpcclient"
)

// fundedBalanceWei is how much native currency the random caller starts
// with: 100 units, matching base spec §4.5's "fund the caller with 100
// units of native token".
var fundedBalanceWei = mustUint256FromDecimal("100000000000000000000") // 100 * 1e18

// newMemoryStateDB builds a fresh, empty in-memory state database. Adapted
// directly from other_examples' devlongs-evm-tracer analyzer.go
// (createStateDB): rawdb.NewMemoryDatabase backing a state.New at the empty
// trie root, rather than a historical block root — there is no real chain
// behind a round-trip simulation, only synthetic state seeded from RPC
// reads.
func newMemoryStateDB() (*state.StateDB, error) {
	db := rawdb.NewMemoryDatabase()
	sdb, err := state.New(types.EmptyRootHash, state.NewDatabase(db), nil)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "construct in-memory state", err)
	}
	return sdb, nil
}

// randomCallerAddress generates 20 cryptographically random bytes per base
// spec §4.5/§9: determinism is deliberately avoided so whitelist-based
// honeypots cannot precompute an allow list.
func randomCallerAddress() (common.Address, error) {
	var addr common.Address
	if _, err := rand.Read(addr[:]); err != nil {
		return common.Address{}, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "generate random caller", err)
	}
	return addr, nil
}

// AccountLoader installs real on-chain bytecode for a fixed set of
// addresses into an in-memory StateDB, fetching each address's code at most
// once via eth_getCode. This adapts the teacher's revm_bridge
// batch_prefetch/handles idea — fetch-on-miss, cache by address — onto
// plain *state.StateDB instead of an FFI handle table, since there is no
// cgo boundary to manage handles across anymore.
type AccountLoader struct {
	rpc *rpcclient.Client

	mu     sync.Mutex
	loaded map[common.Address]bool
}

// NewAccountLoader builds a loader bound to rpc. A loader is scoped to a
// single simulation request and discarded afterward — base spec §5
// ("Cancellation") requires that partial in-memory state be discardable
// with the task, which a per-request loader naturally satisfies.
func NewAccountLoader(rpc *rpcclient.Client) *AccountLoader {
	return &AccountLoader{rpc: rpc, loaded: make(map[common.Address]bool)}
}

// Ensure installs addr's runtime bytecode into statedb if it hasn't already
// been loaded by this loader. A zero address is a no-op (callers pass the
// pair address optionally, which may be unset).
func (l *AccountLoader) Ensure(ctx context.Context, statedb *state.StateDB, addr common.Address) error {
	if addr == (common.Address{}) {
		return nil
	}

	l.mu.Lock()
	if l.loaded[addr] {
		l.mu.Unlock()
		return nil
	}
	l.loaded[addr] = true
	l.mu.Unlock()

	raw, err := l.rpc.Call(ctx, "eth_getCode", []interface{}{addr.Hex(), "latest"})
	if err != nil {
		return pkgerr.Wrap(pkgerr.CodeRPCError, fmt.Sprintf("fetch code for %s", addr.Hex()), err)
	}

	var codeHex string
	if err := json.Unmarshal(raw, &codeHex); err != nil {
		return pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "decode eth_getCode response", err)
	}
	code := common.FromHex(codeHex)
	if len(code) == 0 {
		return nil // EOA or not-yet-deployed; simulation will fail naturally on call
	}
	statedb.SetCode(addr, code)
	return nil
}

// fundCaller credits the random caller with fundedBalanceWei native units.
func fundCaller(statedb *state.StateDB, caller common.Address) {
	statedb.AddBalance(caller, fundedBalanceWei, tracing.BalanceChangeUnspecified)
}

func mustUint256FromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err) // constant literal; only fails if the literal above is malformed
	}
	return v
}

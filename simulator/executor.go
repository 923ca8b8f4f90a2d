// Package simulator is the EVM Simulator (base spec §4.5): it executes a
// Buy → Approve → Sell round-trip against an in-memory EVM seeded with real
// on-chain state pulled via RPC, and classifies each step's outcome into
// Success/Revert/Halt.
//
// Grounded on other_examples/469a722b_devlongs-evm-tracer's analyzer.go,
// which proves go-ethereum's own core/vm.NewEVM + core/state.StateDB
// (backed by core/rawdb.NewMemoryDatabase) is sufficient for in-memory
// transaction execution with no FFI/cgo bridge required. The teacher
// (clydemeng-bsc) additionally carried a cgo-linked REVM backend behind an
// Executor/TxExecutor interface split; that split's *shape* — a narrow
// interface hiding the execution backend, plus a small CallMetadata value
// type describing one call — is kept and adapted here to front our single
// Go-native backend (see DESIGN.md for the full justification of dropping
// the REVM half).
package simulator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/evmsentry/pers/pkgerr"
)

// CallMetadata describes one call to be executed against the simulated
// state. Unlike the teacher's FFI-oriented CallMetadata (hex-string
// addresses and values, to cross a cgo boundary cleanly), this version uses
// go-ethereum's native common.Address/*big.Int directly — there is no
// foreign boundary to cross, only a single in-process EVM.
type CallMetadata struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

// Executor is a minimal abstraction over a transaction execution backend.
// The base spec never requires more than one backend (there is exactly one
// EVM implementation in scope), but the interface is kept — rather than
// inlining vm.NewEVM calls directly into Simulator — because it is how the
// teacher structures this concern and it keeps Simulator's round-trip logic
// decoupled from EVM construction details.
type Executor interface {
	Engine() string
	ExecuteCall(ctx context.Context, meta CallMetadata) (*Outcome, error)
}

type goExecutor struct {
	statedb     *state.StateDB
	blockCtx    vm.BlockContext
	chainConfig *params.ChainConfig
	vmConfig    vm.Config
}

// NewExecutor constructs the (sole) Go-native execution backend bound to an
// already-seeded state database and block environment.
func NewExecutor(statedb *state.StateDB, blockCtx vm.BlockContext, chainConfig *params.ChainConfig) Executor {
	return &goExecutor{
		statedb:     statedb,
		blockCtx:    blockCtx,
		chainConfig: chainConfig,
		vmConfig:    vm.Config{},
	}
}

func (g *goExecutor) Engine() string { return "go-evm" }

func (g *goExecutor) ExecuteCall(ctx context.Context, meta CallMetadata) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	to := meta.To
	msg := &core.Message{
		From:              meta.From,
		To:                &to,
		Nonce:             meta.Nonce,
		Value:             meta.Value,
		GasLimit:          meta.GasLimit,
		GasPrice:          meta.GasPrice,
		GasFeeCap:         meta.GasPrice,
		GasTipCap:         big.NewInt(0),
		Data:              meta.Data,
		SkipAccountChecks: true,
	}

	txCtx := core.NewEVMTxContext(msg)
	evm := vm.NewEVM(g.blockCtx, txCtx, g.statedb, g.chainConfig, g.vmConfig)

	gp := new(core.GasPool).AddGas(meta.GasLimit)
	result, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		// The message never started executing (e.g. intrinsic gas too low,
		// insufficient balance for gas*limit). Not a revert — there is no
		// revert payload to decode — but it's still a failed step.
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "message application failed", err)
	}

	if !result.Failed() {
		return &Outcome{Status: StatusSuccess, ReturnData: result.ReturnData, GasUsed: result.UsedGas}, nil
	}

	if result.Err == vm.ErrExecutionReverted {
		return &Outcome{
			Status:     StatusRevert,
			ReturnData: result.ReturnData,
			GasUsed:    result.UsedGas,
			Reason:     classifyRevert(result.ReturnData),
		}, nil
	}

	return &Outcome{
		Status:  StatusHalt,
		GasUsed: result.UsedGas,
		Reason:  classifyHalt(result.Err),
	}, nil
}

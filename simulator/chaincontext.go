package simulator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

// noopEngine is a minimal consensus.Engine sufficient to satisfy
// core.NewEVMBlockContext's ChainContext parameter when no real blockchain
// backend exists. Adapted from the teacher's stubEngine/stubChain pair in
// core/tx_executor.go, which served the same purpose for off-chain
// execution paths.
type noopEngine struct{}

func (noopEngine) Author(h *types.Header) (common.Address, error) { return h.Coinbase, nil }
func (noopEngine) VerifyHeader(consensus.ChainHeaderReader, *types.Header) error { return nil }
func (noopEngine) VerifyHeaders(consensus.ChainHeaderReader, []*types.Header) (chan<- struct{}, <-chan error) {
	quit := make(chan struct{})
	results := make(chan error)
	go func() {
		<-quit
		close(results)
	}()
	return quit, results
}
func (noopEngine) VerifyUncles(consensus.ChainReader, *types.Block) error { return nil }
func (noopEngine) Prepare(consensus.ChainHeaderReader, *types.Header) error { return nil }
func (noopEngine) Finalize(consensus.ChainHeaderReader, *types.Header, *state.StateDB, *types.Body) {
}
func (noopEngine) FinalizeAndAssemble(consensus.ChainHeaderReader, *types.Header, *state.StateDB, *types.Body, []*types.Receipt) (*types.Block, error) {
	return nil, nil
}
func (noopEngine) Seal(consensus.ChainHeaderReader, *types.Block, chan<- *types.Block, <-chan struct{}) error {
	return nil
}
func (noopEngine) SealHash(*types.Header) common.Hash { return common.Hash{} }
func (noopEngine) CalcDifficulty(consensus.ChainHeaderReader, uint64, *types.Header) *big.Int {
	return big.NewInt(0)
}
func (noopEngine) APIs(consensus.ChainHeaderReader) []rpc.API { return nil }
func (noopEngine) Close() error { return nil }

// staticChainContext implements core.ChainContext against a single,
// already-known chain config. There is no real chain behind a round-trip
// simulation — headers older than the current synthetic block are never
// requested (the simulation runs exactly one block's worth of calls) — so
// GetHeader always returns nil, matching the teacher's stubChain.
type staticChainContext struct {
	cfg *params.ChainConfig
}

func (staticChainContext) Engine() consensus.Engine                    { return noopEngine{} }
func (staticChainContext) GetHeader(common.Hash, uint64) *types.Header { return nil }
func (s staticChainContext) Config() *params.ChainConfig               { return s.cfg }

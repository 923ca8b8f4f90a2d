package simulator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/evmsentry/pers/pkgerr"
	"github.com/evmsentry/pers/rpcclient"
)

// Transaction template and block environment constants, base spec §4.5.
const (
	callGasLimit    = 500_000
	callGasPriceWei = 20_000_000_000 // 20 Gwei
	blockGasLimit   = 30_000_000
	blockBaseFeeWei = 20_000_000_000 // 20 Gwei
	syntheticBlock  = 19_000_000     // plausible recent mainnet block number
)

// RoundTripParams describes one Buy → Approve → Sell request.
type RoundTripParams struct {
	ChainID       uint64
	Token         common.Address
	Router        common.Address
	WrappedNative common.Address
	PairAddress   common.Address // zero address if unknown; Ensure() skips it
	TestAmountWei *big.Int
}

// RoundTripResult carries every step's classified Outcome plus the decoded
// amounts the honeypot detector needs to compute round-trip loss. Buy,
// Approve and Sell are nil only if the round trip never reached that step
// (it can't — RunRoundTrip always attempts Buy first — but each is set as
// soon as its step runs, so a caller can inspect partial results after an
// early return).
type RoundTripResult struct {
	Caller         common.Address
	Buy            *Outcome
	Approve        *Outcome
	Sell           *Outcome
	TokensReceived *big.Int
	NativeReceived *big.Int
}

// Simulator drives the full Buy → Approve → Sell round trip (base spec
// §4.5) against fresh, RPC-seeded in-memory state. One Simulator is reused
// across requests; RunRoundTrip builds its own state database and random
// caller per call, so concurrent requests never share state.
type Simulator struct {
	rpc *rpcclient.Client
}

// NewSimulator builds a Simulator that seeds state via rpc.
func NewSimulator(rpc *rpcclient.Client) *Simulator {
	return &Simulator{rpc: rpc}
}

// RunRoundTrip executes Buy, then (if Buy succeeded) Approve, then (if
// Approve succeeded) Sell, against a freshly seeded in-memory EVM. A failed
// step short-circuits the remaining steps; the result returned so far still
// carries every Outcome produced up to that point.
func (s *Simulator) RunRoundTrip(ctx context.Context, p RoundTripParams) (*RoundTripResult, error) {
	statedb, err := newMemoryStateDB()
	if err != nil {
		return nil, err
	}

	caller, err := randomCallerAddress()
	if err != nil {
		return nil, err
	}
	fundCaller(statedb, caller)

	loader := NewAccountLoader(s.rpc)
	for _, addr := range []common.Address{p.Token, p.Router, p.WrappedNative, p.PairAddress} {
		if err := loader.Ensure(ctx, statedb, addr); err != nil {
			return nil, err
		}
	}

	chainConfig := syntheticChainConfig(p.ChainID)
	blockCtx := buildBlockContext(chainConfig)
	executor := NewExecutor(statedb, blockCtx, chainConfig)

	result := &RoundTripResult{Caller: caller}

	buyData, err := packBuy(p.WrappedNative, p.Token, caller)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "encode buy calldata", err)
	}
	buyOutcome, err := executor.ExecuteCall(ctx, CallMetadata{
		From:     caller,
		To:       p.Router,
		Data:     buyData,
		Value:    p.TestAmountWei,
		GasLimit: callGasLimit,
		GasPrice: big.NewInt(callGasPriceWei),
		Nonce:    0,
	})
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationBuyFailed, "execute buy", err)
	}
	result.Buy = buyOutcome
	if buyOutcome.Status != StatusSuccess {
		return result, nil
	}
	result.TokensReceived, _ = DecodeAmountsOut(buyOutcome.ReturnData)
	if result.TokensReceived == nil || result.TokensReceived.Sign() == 0 {
		return result, nil
	}

	approveData, err := packApprove(p.Router, result.TokensReceived)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "encode approve calldata", err)
	}
	approveOutcome, err := executor.ExecuteCall(ctx, CallMetadata{
		From:     caller,
		To:       p.Token,
		Data:     approveData,
		Value:    big.NewInt(0),
		GasLimit: callGasLimit,
		GasPrice: big.NewInt(callGasPriceWei),
		Nonce:    1,
	})
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationApproveFail, "execute approve", err)
	}
	result.Approve = approveOutcome
	if approveOutcome.Status != StatusSuccess {
		return result, nil
	}

	sellData, err := packSell(result.TokensReceived, p.Token, p.WrappedNative, caller)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "encode sell calldata", err)
	}
	sellOutcome, err := executor.ExecuteCall(ctx, CallMetadata{
		From:     caller,
		To:       p.Router,
		Data:     sellData,
		Value:    big.NewInt(0),
		GasLimit: callGasLimit,
		GasPrice: big.NewInt(callGasPriceWei),
		Nonce:    2,
	})
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationSellFailed, "execute sell", err)
	}
	result.Sell = sellOutcome
	if sellOutcome.Status == StatusSuccess {
		result.NativeReceived, _ = DecodeAmountsOut(sellOutcome.ReturnData)
	}
	return result, nil
}

// buildBlockContext constructs the synthetic block environment base spec
// §4.5 names: a plausible recent block number, the current wall-clock time,
// 30M gas limit, 20 Gwei basefee. Difficulty 0 signals a post-merge chain to
// core.NewEVMBlockContext, which is required for the Cancun fork rules
// syntheticChainConfig activates.
func buildBlockContext(cfg *params.ChainConfig) vm.BlockContext {
	header := &types.Header{
		Number:     big.NewInt(syntheticBlock),
		Time:       uint64(time.Now().Unix()),
		GasLimit:   blockGasLimit,
		BaseFee:    big.NewInt(blockBaseFeeWei),
		Difficulty: big.NewInt(0),
	}
	return core.NewEVMBlockContext(header, staticChainContext{cfg: cfg}, &header.Coinbase)
}

// syntheticChainConfig activates every fork through Cancun at genesis, the
// simplest config that supports the simulator's single synthetic block
// without depending on the real historical fork schedule of any one chain.
func syntheticChainConfig(chainID uint64) *params.ChainConfig {
	zero := big.NewInt(0)
	zeroTime := uint64(0)
	return &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(chainID),
		HomesteadBlock:      zero,
		EIP150Block:         zero,
		EIP155Block:         zero,
		EIP158Block:         zero,
		ByzantiumBlock:      zero,
		ConstantinopleBlock: zero,
		PetersburgBlock:     zero,
		IstanbulBlock:       zero,
		MuirGlacierBlock:    zero,
		BerlinBlock:         zero,
		LondonBlock:         zero,
		ArrowGlacierBlock:   zero,
		GrayGlacierBlock:    zero,
		MergeNetsplitBlock:  zero,
		ShanghaiTime:        &zeroTime,
		CancunTime:          &zeroTime,
	}
}

// Package honeypot is the Honeypot Detector (base spec §4.6): it orchestrates
// the Bytecode Scanner and the EVM Simulator, interprets their outcomes, and
// computes round-trip taxes and loss. Two operating modes share the same
// HoneypotResult shape — a router getAmountsOut quote (fast, no bytecode
// execution) and a full Buy→Approve→Sell simulation (base spec §4.5) — per
// Open Question #3, both are implemented rather than choosing one.
package honeypot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/evmsentry/pers/pkgerr"
	"github.com/evmsentry/pers/rpcclient"
	"github.com/evmsentry/pers/scanner"
	"github.com/evmsentry/pers/simulator"
	"github.com/evmsentry/pers/telemetry"
)

// quoteABIJSON covers the single router method quote mode needs.
const quoteABIJSON = `[{"name":"getAmountsOut","type":"function","stateMutability":"view",
  "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
  "outputs":[{"name":"amounts","type":"uint256[]"}]}]`

// metadataABIJSON covers the ERC-20 read-only surface token metadata needs.
const metadataABIJSON = `[
  {"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var quoteABI = mustParseABI(quoteABIJSON)
var metadataABI = mustParseABI(metadataABIJSON)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err) // constant literal; only fails if malformed
	}
	return parsed
}

var logger = log.New("component", "honeypot")

// TokenMetadata is the optional name/symbol/decimals enrichment base spec
// §4.6 names. Fields are nil when undecodable rather than zero-valued, so
// callers can distinguish "fetched and empty" from "not fetched".
type TokenMetadata struct {
	Name     *string
	Symbol   *string
	Decimals *uint8
}

// Result is the canonical HoneypotResult (base spec §3.1).
type Result struct {
	IsHoneypot            bool
	SellReverted          bool
	BuySuccess            bool
	SellSuccess           bool
	BuyTaxPercent         float64
	SellTaxPercent        float64
	TotalLossPercent      float64
	AccessControlPenalty  int
	Reason                string
	RiskFactors           []string
	LatencyMs             uint64
	Metadata              *TokenMetadata

	// Simulated is true when this Result came from DetectFullSimulation
	// rather than DetectQuote. riskscore.Compose uses it for the weighted
	// composer's confidence bonus (base spec §4.7 "Richer composition":
	// "+25 ... whether any factor was derived from simulation").
	Simulated bool
}

// Params describes one detect() request (base spec §4.6's contract:
// detect(token, test_amount_native)).
type Params struct {
	ChainID       uint64
	Token         common.Address
	Router        common.Address
	WrappedNative common.Address
	PairAddress   common.Address
	TestAmountWei *big.Int
	NativeSymbol  string
	FetchMetadata bool
}

func (p Params) nativeSymbolOrDefault() string {
	if p.NativeSymbol == "" {
		return "ETH"
	}
	return p.NativeSymbol
}

// Detector runs both operating modes of detect() against a shared RPC
// client and EVM simulator.
type Detector struct {
	rpc *rpcclient.Client
	sim *simulator.Simulator
}

// NewDetector builds a Detector bound to rpc.
func NewDetector(rpc *rpcclient.Client) *Detector {
	return &Detector{rpc: rpc, sim: simulator.NewSimulator(rpc)}
}

// commonPrefix runs the bytecode scan and, optionally, the metadata fetch —
// the two steps base spec §4.6 says run "regardless of outcome".
func (d *Detector) commonPrefix(ctx context.Context, p Params) (scanner.Result, *TokenMetadata) {
	scanRes := d.scanBytecode(ctx, p.Token)
	var meta *TokenMetadata
	if p.FetchMetadata {
		meta = d.fetchMetadata(ctx, p.Token)
	}
	return scanRes, meta
}

// DetectQuote implements base spec §4.6(a): a router getAmountsOut quote in
// both directions, no contract execution. Preferred when only the router
// and wrapped-native address are known to be reachable.
func (d *Detector) DetectQuote(ctx context.Context, p Params) (res *Result, err error) {
	start := time.Now()
	defer func() { recordVerdict(res) }()
	scanRes, meta := d.commonPrefix(ctx, p)
	res = &Result{
		AccessControlPenalty: scanRes.Penalty,
		RiskFactors:          append([]string{}, scanRes.Findings...),
		Metadata:             meta,
		Simulated:            false,
	}

	expectedTokens, err := d.quote(ctx, p.Router, p.TestAmountWei, p.WrappedNative, p.Token)
	if err != nil || expectedTokens == nil || expectedTokens.Sign() == 0 {
		res.Reason = "No liquidity pool found"
		res.RiskFactors = append(res.RiskFactors, "No liquidity on checked DEX")
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	res.BuySuccess = true

	ethBack, quoteErr := d.quote(ctx, p.Router, expectedTokens, p.Token, p.WrappedNative)
	if quoteErr != nil {
		if isSoftLiquidityError(quoteErr) {
			res.Reason = "Insufficient liquidity for sell"
			res.LatencyMs = elapsedMs(start)
			return res, nil
		}
		res.IsHoneypot = true
		res.Reason = "Sell returned 0 " + p.nativeSymbolOrDefault()
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	if ethBack.Sign() == 0 {
		res.IsHoneypot = true
		res.Reason = "Sell returned 0 " + p.nativeSymbolOrDefault()
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}

	res.SellSuccess = true
	loss := roundTripLoss(p.TestAmountWei, ethBack)
	res.TotalLossPercent = loss
	if loss > 90 {
		res.IsHoneypot = true
		res.Reason = fmt.Sprintf("Extreme loss: %.2f%%", loss)
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}

	res.BuyTaxPercent = loss / 2
	res.SellTaxPercent = loss / 2
	res.Reason = "Token passed quote-mode check"
	res.LatencyMs = elapsedMs(start)
	return res, nil
}

// DetectFullSimulation implements base spec §4.6(b): a Buy → Approve →
// Sell round trip executed against an in-memory EVM (base spec §4.5).
func (d *Detector) DetectFullSimulation(ctx context.Context, p Params) (res *Result, err error) {
	start := time.Now()
	defer func() { recordVerdict(res) }()
	scanRes, meta := d.commonPrefix(ctx, p)
	res = &Result{
		AccessControlPenalty: scanRes.Penalty,
		RiskFactors:          append([]string{}, scanRes.Findings...),
		Metadata:             meta,
		Simulated:            true,
	}

	// base spec §8 boundary case: test_amount=0 is a documented dead end,
	// not a validation error.
	if p.TestAmountWei == nil || p.TestAmountWei.Sign() == 0 {
		res.IsHoneypot = true
		res.Reason = "Invalid test amount"
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}

	var rt *simulator.RoundTripResult
	rt, err = d.sim.RunRoundTrip(ctx, simulator.RoundTripParams{
		ChainID:       p.ChainID,
		Token:         p.Token,
		Router:        p.Router,
		WrappedNative: p.WrappedNative,
		PairAddress:   p.PairAddress,
		TestAmountWei: p.TestAmountWei,
	})
	if err != nil {
		return nil, err
	}

	if rt.Buy == nil || rt.Buy.Status != simulator.StatusSuccess {
		res.IsHoneypot = true
		res.Reason = "Buy failed: " + reasonOf(rt.Buy)
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	if rt.TokensReceived == nil || rt.TokensReceived.Sign() == 0 {
		res.IsHoneypot = true
		res.Reason = "Buy returned 0 tokens"
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	res.BuySuccess = true

	if rt.Approve == nil || rt.Approve.Status != simulator.StatusSuccess {
		res.IsHoneypot = true
		res.Reason = "Approve failed: " + reasonOf(rt.Approve)
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}

	if rt.Sell == nil || rt.Sell.Status != simulator.StatusSuccess {
		res.IsHoneypot = true
		res.SellReverted = rt.Sell != nil && rt.Sell.Status == simulator.StatusRevert
		res.Reason = reasonOf(rt.Sell)
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	if rt.NativeReceived == nil || rt.NativeReceived.Sign() == 0 {
		res.IsHoneypot = true
		res.Reason = "Sell returned 0 " + p.nativeSymbolOrDefault()
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}
	res.SellSuccess = true

	loss := roundTripLoss(p.TestAmountWei, rt.NativeReceived)
	res.TotalLossPercent = loss
	if loss > 50 {
		res.IsHoneypot = true
		res.Reason = fmt.Sprintf("Extreme loss: %.2f%% - likely honeypot or high tax", loss)
		res.LatencyMs = elapsedMs(start)
		return res, nil
	}

	res.BuyTaxPercent = loss / 2
	res.SellTaxPercent = loss / 2
	res.Reason = "Token passed buy/sell simulation"
	res.LatencyMs = elapsedMs(start)
	return res, nil
}

// recordVerdict increments the detector verdict counter named in base spec
// §5's telemetry model. Called via defer from both Detect* entry points so
// every early-return path is covered without repeating the increment at
// each one; res is nil on the RunRoundTrip-error path, where there is no
// verdict to classify.
func recordVerdict(res *Result) {
	if res == nil {
		return
	}
	telemetry.DetectorVerdictsTotal.WithLabelValues(verdictLabel(res)).Inc()
}

func verdictLabel(res *Result) string {
	if res.IsHoneypot {
		return "honeypot"
	}
	switch res.Reason {
	case "No liquidity pool found":
		return "no_liquidity"
	case "Insufficient liquidity for sell":
		return "low_liquidity"
	default:
		return "safe"
	}
}

func reasonOf(o *simulator.Outcome) string {
	if o == nil {
		return "execution failed"
	}
	if o.Reason != "" {
		return o.Reason
	}
	return o.Status.String()
}

func roundTripLoss(in, out *big.Int) float64 {
	if in == nil || in.Sign() == 0 {
		return 0
	}
	inF, _ := new(big.Float).SetInt(in).Float64()
	outF, _ := new(big.Float).SetInt(out).Float64()
	loss := (inF - outF) / inF * 100
	return math.Max(0, loss)
}

func isSoftLiquidityError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "empty")
}

func (d *Detector) quote(ctx context.Context, router common.Address, amountIn *big.Int, from, to common.Address) (*big.Int, error) {
	data, err := quoteABI.Pack("getAmountsOut", amountIn, []common.Address{from, to})
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeSimulationFailed, "encode getAmountsOut", err)
	}
	out, err := d.ethCall(ctx, router, data)
	if err != nil {
		return nil, err
	}
	amount, ok := simulator.DecodeAmountsOut(out)
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (d *Detector) ethCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	callObj := map[string]interface{}{
		"to":   to.Hex(),
		"data": "0x" + hex.EncodeToString(data),
	}
	raw, err := d.rpc.Call(ctx, "eth_call", []interface{}{callObj, "latest"})
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeRPCInvalidResponse, "decode eth_call result", err)
	}
	return common.FromHex(hexStr), nil
}

func (d *Detector) scanBytecode(ctx context.Context, token common.Address) scanner.Result {
	raw, err := d.rpc.Call(ctx, "eth_getCode", []interface{}{token.Hex(), "latest"})
	if err != nil {
		logger.Warn("bytecode fetch failed, skipping scan", "token", token.Hex(), "err", err)
		return scanner.Result{}
	}
	var codeHex string
	if err := json.Unmarshal(raw, &codeHex); err != nil {
		logger.Warn("bytecode decode failed, skipping scan", "token", token.Hex(), "err", err)
		return scanner.Result{}
	}
	return scanner.Scan(common.FromHex(codeHex))
}

func (d *Detector) fetchMetadata(ctx context.Context, token common.Address) *TokenMetadata {
	meta := &TokenMetadata{}
	if out, ok := d.metadataCall(ctx, token, "name"); ok {
		if name, decoded := decodeStringFlexible(out); decoded {
			meta.Name = &name
		}
	}
	if out, ok := d.metadataCall(ctx, token, "symbol"); ok {
		if symbol, decoded := decodeStringFlexible(out); decoded {
			meta.Symbol = &symbol
		}
	}
	if out, ok := d.metadataCall(ctx, token, "decimals"); ok {
		if dec, decoded := decodeDecimals(out); decoded {
			meta.Decimals = &dec
		}
	}
	return meta
}

func (d *Detector) metadataCall(ctx context.Context, token common.Address, method string) ([]byte, bool) {
	data, err := metadataABI.Pack(method)
	if err != nil {
		return nil, false
	}
	out, err := d.ethCall(ctx, token, data)
	if err != nil {
		logger.Warn("metadata call failed", "token", token.Hex(), "method", method, "err", err)
		return nil, false
	}
	return out, true
}

// decodeStringFlexible decodes a name()/symbol() return value in either the
// ABI dynamic-string layout or the legacy fixed 32-byte right-padded layout.
func decodeStringFlexible(out []byte) (string, bool) {
	if vals, err := metadataABI.Unpack("name", out); err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok {
			return s, true
		}
	}
	if len(out) != 32 {
		return "", false
	}
	return strings.TrimRight(string(out), "\x00"), true
}

// decodeDecimals reads decimals() as the trailing byte of a 32-byte word.
func decodeDecimals(out []byte) (uint8, bool) {
	if len(out) < 32 {
		return 0, false
	}
	return out[31], true
}

func elapsedMs(start time.Time) uint64 {
	return uint64(time.Since(start).Milliseconds())
}

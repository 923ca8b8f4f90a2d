package honeypot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/evmsentry/pers/rpcclient"
)

// rpcScript maps JSON-RPC method names to a queue of raw hex responses
// (without 0x), returned in call order. eth_getCode responses are keyed by
// the lowercase "to" address; eth_call responses are popped off a shared
// FIFO queue (quote mode makes exactly two eth_call requests, forward then
// reverse).
type rpcScript struct {
	code       map[string]string
	callQueue  []string
	callCursor int32
}

func newMockServer(t *testing.T, script *rpcScript) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_getCode":
			var addr string
			_ = json.Unmarshal(req.Params[0], &addr)
			result = "0x" + script.code[strings.ToLower(addr)]
		case "eth_call":
			idx := atomic.AddInt32(&script.callCursor, 1) - 1
			if int(idx) < len(script.callQueue) {
				result = "0x" + script.callQueue[idx]
			} else {
				result = "0x"
			}
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

// wordHex ABI-encodes n as a right-aligned 32-byte word, hex-only (no 0x).
func wordHex(n int64) string {
	b := new(big.Int).SetInt64(n).FillBytes(make([]byte, 32))
	return hex.EncodeToString(b)
}

var testToken = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
var testRouter = common.HexToAddress("0xB0B0000000000000000000000000000000B0B0")
var testWETH = common.HexToAddress("0xC0C0000000000000000000000000000000C0C0")

func baseParams() Params {
	return Params{
		ChainID:       1,
		Token:         testToken,
		Router:        testRouter,
		WrappedNative: testWETH,
		TestAmountWei: big.NewInt(1e18),
		NativeSymbol:  "ETH",
	}
}

// Fixture #1 (base spec §8): clean bytecode, buy and sell succeed with
// low loss — safe verdict, zero AC penalty.
func TestDetectQuoteCleanTokenIsSafe(t *testing.T) {
	script := &rpcScript{
		code: map[string]string{
			strings.ToLower(testToken.Hex()): "6080604052",
		},
		callQueue: []string{wordHex(1_000_000), wordHex(980_000_000_000_000_000)}, // ~2% loss
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.False(t, res.IsHoneypot)
	require.False(t, res.SellReverted)
	require.Equal(t, 0, res.AccessControlPenalty)
	require.InDelta(t, 2.0, res.TotalLossPercent, 0.5)
}

// Fixture #2: token bytecode contains the setBots selector — AC penalty
// applies regardless of the honeypot verdict.
func TestDetectQuoteSetBotsSelectorSetsPenalty(t *testing.T) {
	script := &rpcScript{
		code: map[string]string{
			strings.ToLower(testToken.Hex()): "6080604052" + "974d396d" + "6000",
		},
		callQueue: []string{wordHex(1_000_000), wordHex(980_000)},
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.Equal(t, 50, res.AccessControlPenalty)
	require.Contains(t, res.RiskFactors, "setBots detected")
}

// Fixture #3: reverse quote call decodes to zero — sell returns zero
// native out, honeypot.
func TestDetectQuoteSellReturnsZeroIsHoneypot(t *testing.T) {
	script := &rpcScript{
		code:      map[string]string{strings.ToLower(testToken.Hex()): ""},
		callQueue: []string{wordHex(1_000_000), wordHex(0)},
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.True(t, res.IsHoneypot)
	require.True(t, strings.HasPrefix(res.Reason, "Sell returned 0"))
}

// Fixture #4: forward quote returns zero — no liquidity pool found, not a
// honeypot verdict.
func TestDetectQuoteNoForwardLiquidity(t *testing.T) {
	script := &rpcScript{
		code:      map[string]string{strings.ToLower(testToken.Hex()): ""},
		callQueue: []string{wordHex(0)},
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.False(t, res.IsHoneypot)
	require.Equal(t, "No liquidity pool found", res.Reason)
}

func TestDetectQuoteExtremeLossIsHoneypot(t *testing.T) {
	script := &rpcScript{
		code:      map[string]string{strings.ToLower(testToken.Hex()): ""},
		callQueue: []string{wordHex(1_000_000), wordHex(50_000_000_000_000_000)}, // 95% loss
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.True(t, res.IsHoneypot)
	require.Contains(t, res.Reason, "Extreme loss")
}

func TestDetectQuoteMarksSimulatedFalse(t *testing.T) {
	script := &rpcScript{
		code:      map[string]string{strings.ToLower(testToken.Hex()): ""},
		callQueue: []string{wordHex(0)},
	}
	server := newMockServer(t, script)
	defer server.Close()

	rpc := rpcclient.New([]string{server.URL}, "pers-test", "1.0")
	d := NewDetector(rpc)

	res, err := d.DetectQuote(context.Background(), baseParams())
	require.NoError(t, err)
	require.False(t, res.Simulated)
}

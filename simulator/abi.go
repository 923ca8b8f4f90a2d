package simulator

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// routerABIJSON covers exactly the three Uniswap-V2-interface methods the
// base spec names (glossary: "V2-compatible router").
const routerABIJSON = `[
  {"name":"swapExactETHForTokens","type":"function","stateMutability":"payable",
   "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},
             {"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
             {"name":"path","type":"address[]"},{"name":"to","type":"address"},
             {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"getAmountsOut","type":"function","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// erc20ABIJSON covers the ERC-20 surface the simulator and honeypot detector
// need: approve (the Approve step) plus the read-only metadata calls.
const erc20ABIJSON = `[
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"name","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"string"}]},
  {"name":"symbol","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"string"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

var routerABI = mustParseABI(routerABIJSON)
var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err) // constant ABI literal; only fails if the literal above is malformed
	}
	return parsed
}

// packBuy encodes swapExactETHForTokens(0, [wrappedNative, token], to, deadline=max).
func packBuy(wrappedNative, token, to common.Address) ([]byte, error) {
	return routerABI.Pack("swapExactETHForTokens", big.NewInt(0), []common.Address{wrappedNative, token}, to, maxDeadline())
}

// packApprove encodes approve(spender, amount).
func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// packSell encodes swapExactTokensForETH(amountIn, 0, [token, wrappedNative], to, deadline=max).
func packSell(amountIn *big.Int, token, wrappedNative, to common.Address) ([]byte, error) {
	return routerABI.Pack("swapExactTokensForETH", amountIn, big.NewInt(0), []common.Address{token, wrappedNative}, to, maxDeadline())
}

func maxDeadline() *big.Int {
	return new(big.Int).SetUint64(^uint64(0))
}

// DecodeAmountsOut extracts the final element of the ABI-encoded
// uint256[] `amounts` array a V2 router returns, per base spec §4.5: "the
// last 32-byte word of the ABI-encoded uint256[] amounts" is the output
// amount of the last hop.
func DecodeAmountsOut(data []byte) (*big.Int, bool) {
	out, err := routerABI.Unpack("getAmountsOut", data)
	if err != nil || len(out) == 0 {
		return decodeLastWord(data), len(data) >= 32
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return decodeLastWord(data), len(data) >= 32
	}
	return amounts[len(amounts)-1], true
}

// decodeLastWord is a defensive fallback: dynamic-array ABI returns always
// end with their final element as the trailing 32-byte word, regardless of
// which named function produced them, so this works even when Unpack's
// method-name binding doesn't match the actual selector called.
func decodeLastWord(data []byte) *big.Int {
	if len(data) < 32 {
		return big.NewInt(0)
	}
	word := data[len(data)-32:]
	return new(big.Int).SetBytes(word)
}

package simulator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackBuy(t *testing.T) {
	weth := common.HexToAddress("0x0000000000000000000000000000000000000001")
	token := common.HexToAddress("0x0000000000000000000000000000000000000002")
	caller := common.HexToAddress("0x0000000000000000000000000000000000000003")

	data, err := packBuy(weth, token, caller)
	if err != nil {
		t.Fatalf("packBuy: %v", err)
	}
	if len(data) < 4 {
		t.Fatalf("expected at least a 4-byte selector, got %d bytes", len(data))
	}
}

func TestPackApproveAndSell(t *testing.T) {
	router := common.HexToAddress("0x0000000000000000000000000000000000000001")
	token := common.HexToAddress("0x0000000000000000000000000000000000000002")
	weth := common.HexToAddress("0x0000000000000000000000000000000000000003")
	caller := common.HexToAddress("0x0000000000000000000000000000000000000004")
	amount := big.NewInt(1_000_000)

	if _, err := packApprove(router, amount); err != nil {
		t.Fatalf("packApprove: %v", err)
	}
	if _, err := packSell(amount, token, weth, caller); err != nil {
		t.Fatalf("packSell: %v", err)
	}
}

func TestDecodeAmountsOut_ValidEncoding(t *testing.T) {
	data, err := routerABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{big.NewInt(100), big.NewInt(95)})
	if err != nil {
		t.Fatalf("pack fixture amounts: %v", err)
	}
	got, ok := DecodeAmountsOut(data)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("expected last amount 95, got %s", got)
	}
}

func TestDecodeAmountsOut_ShortData(t *testing.T) {
	got, ok := DecodeAmountsOut([]byte{0x01, 0x02})
	if ok {
		t.Fatalf("expected ok=false for undersized data")
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero fallback, got %s", got)
	}
}

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, body string) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	c := New(nil)
	c.baseURL = srv.URL
	return c, srv.Close
}

const twoPairsJSON = `{
  "pairs": [
    {"chainId":"ethereum","dexId":"uniswap","labels":[],"pairAddress":"0xpair1",
     "baseToken":{"address":"0xtoken","name":"Foo","symbol":"FOO"},
     "quoteToken":{"address":"0xweth","name":"Wrapped Ether","symbol":"WETH"},
     "liquidity":{"usd":50000},"priceUsd":"1.23","volume":{"h24":1000}},
    {"chainId":"ethereum","dexId":"uniswap","labels":["v3"],"pairAddress":"0xpair2",
     "baseToken":{"address":"0xtoken","name":"Foo","symbol":"FOO"},
     "quoteToken":{"address":"0xweth","name":"Wrapped Ether","symbol":"WETH"},
     "liquidity":{"usd":900000},"priceUsd":"1.25","volume":{"h24":5000}}
  ]
}`

func TestGetPairsSortsByLiquidityDescending(t *testing.T) {
	c, closeFn := newTestClient(t, twoPairsJSON)
	defer closeFn()

	pairs, err := c.GetPairs(context.Background(), "0xtoken")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, 900000.0, pairs[0].LiquidityUSD)
	require.Equal(t, 50000.0, pairs[1].LiquidityUSD)
}

func TestDexPairIsV2CompatibleExcludesV3Label(t *testing.T) {
	v3 := DexPair{DexID: "uniswap", Labels: []string{"v3"}}
	require.False(t, v3.IsV2Compatible())

	v2 := DexPair{DexID: "uniswap", Labels: nil}
	require.True(t, v2.IsV2Compatible())
}

func TestDexPairIsV2CompatibleExcludesConcentratedLiquidityDex(t *testing.T) {
	velodrome := DexPair{DexID: "velodrome", Labels: nil}
	require.False(t, velodrome.IsV2Compatible())
}

func TestAutoDetectPrefersV2PairWhenPresent(t *testing.T) {
	c, closeFn := newTestClient(t, twoPairsJSON)
	defer closeFn()

	route, err := c.AutoDetect(context.Background(), "0xtoken")
	require.NoError(t, err)
	require.True(t, route.HasV2Liquidity)
	require.Equal(t, uint64(1), route.ChainID)
	require.Equal(t, 2, route.TotalPairCount)
}

const onlyV3JSON = `{
  "pairs": [
    {"chainId":"ethereum","dexId":"uniswap","labels":["v3"],"pairAddress":"0xpair3",
     "baseToken":{"address":"0xtoken","name":"Foo","symbol":"FOO"},
     "quoteToken":{"address":"0xweth","name":"Wrapped Ether","symbol":"WETH"},
     "liquidity":{"usd":900000},"priceUsd":"1.25","volume":{"h24":5000}}
  ]
}`

func TestAutoDetectFallsBackWhenNoV2Pair(t *testing.T) {
	c, closeFn := newTestClient(t, onlyV3JSON)
	defer closeFn()

	route, err := c.AutoDetect(context.Background(), "0xtoken")
	require.NoError(t, err)
	require.False(t, route.HasV2Liquidity)
}

func TestAutoDetectErrorsOnNoPairs(t *testing.T) {
	c, closeFn := newTestClient(t, `{"pairs":[]}`)
	defer closeFn()

	_, err := c.AutoDetect(context.Background(), "0xtoken")
	require.Error(t, err)
}

func TestFetchSnapshotReturnsBestPair(t *testing.T) {
	c, closeFn := newTestClient(t, twoPairsJSON)
	defer closeFn()

	snap, err := c.FetchSnapshot(context.Background(), "0xtoken", 1)
	require.NoError(t, err)
	require.Equal(t, 900000.0, snap.LiquidityUSD)
}

// Package routes is the Route Discovery Client: it calls the DexScreener
// public aggregator API to locate liquidity pools for a token across chains
// and picks the best V2-compatible one to simulate against.
//
// Grounded on original_source/src/dexscreener.rs: same endpoint
// (api.dexscreener.com/latest/dex/tokens/{address}), same sort-by-liquidity
// behavior, same auto-detect selection idea. The shape is reworked into
// idiomatic Go: a plain *http.Client instead of reqwest, stdlib
// encoding/json instead of serde, and errors routed through pkgerr instead
// of eyre.
package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/evmsentry/pers/pkgerr"
)

const (
	defaultBaseURL    = "https://api.dexscreener.com/latest/dex"
	autoDetectTimeout = 10 * time.Second
	snapshotTimeout   = 3 * time.Second
)

// concentratedLiquidityDexIDs are ve(3,3)/concentrated-liquidity forks that
// don't expose the Uniswap V2 router interface, even when their pair labels
// don't explicitly say "v3"/"v4".
var concentratedLiquidityDexIDs = map[string]bool{
	"velodrome": true,
	"aerodrome": true,
	"ramses":    true,
	"thena":     true,
	"equalizer": true,
}

// DexToken is one side of a DexPair.
type DexToken struct {
	Address string
	Name    string
	Symbol  string
}

// DexPair is one trading pair as reported by the aggregator.
type DexPair struct {
	Chain         string
	DexID         string
	Labels        []string
	PairAddress   string
	BaseToken     DexToken
	QuoteToken    DexToken
	LiquidityUSD  float64
	PriceUSD      float64
	Volume24hUSD  float64
}

// IsV2Compatible reports whether p exposes the Uniswap V2 router interface:
// no v3/v4 label and not a concentrated-liquidity/ve(3,3) fork.
func (p DexPair) IsV2Compatible() bool {
	for _, label := range p.Labels {
		l := strings.ToLower(label)
		if strings.Contains(l, "v3") || strings.Contains(l, "v4") {
			return false
		}
	}
	return !concentratedLiquidityDexIDs[strings.ToLower(p.DexID)]
}

// Snapshot is a best-effort market enrichment attached to a cache hit or a
// freshly discovered route (base spec §4.9 step 6; detailed in SPEC_FULL.md
// §B.3 "Market snapshot enrichment").
type Snapshot struct {
	PriceUSD      float64
	LiquidityUSD  float64
	Volume24hUSD  float64
	PairAddress   string
}

// DiscoveredRoute is the outcome of auto-detection: owned by the enclosing
// request, never cached (base spec §3.1/§3.3).
type DiscoveredRoute struct {
	ChainID         uint64
	ChainName       string
	PrimaryRouter   string
	AllRouters      []string
	HasV2Liquidity  bool
	TotalPairCount  int
	MarketSnapshot  *Snapshot
}

// ChainNamer resolves a DexScreener chain name (e.g. "bsc") to a numeric
// chain_id; satisfied by *chainregistry.Registry without importing it here
// to avoid a dependency cycle (chainregistry has no reason to know about
// route discovery).
type ChainNamer interface {
	ChainIDByName(name string) (uint64, bool)
}

var dexscreenerNameToChainID = map[string]uint64{
	"ethereum":  1,
	"bsc":       56,
	"polygon":   137,
	"arbitrum":  42161,
	"optimism":  10,
	"avalanche": 43114,
	"base":      8453,
}

var dexIDToRouter = map[string]map[string]string{
	"ethereum": {
		"uniswap":   "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		"sushiswap": "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
	},
	"bsc": {
		"pancakeswap": "0x10ED43C718714eb63d5aA57B78B54704E256024E",
		"biswap":      "0x3a6d8cA21D1CF76F653A67577FA0D27453350dD8",
	},
	"polygon": {
		"quickswap": "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff",
		"sushiswap": "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
	},
	"arbitrum": {
		"camelot":   "0xc873fEcbd354f5A56E00E710B90EF4201db2448d",
		"sushiswap": "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
	},
	"avalanche": {
		"traderjoe": "0x60aE616a2155Ee3d9A68541Ba4544862310933d4",
		"pangolin":  "0xE54Ca86531e17Ef3616d22Ca28b0D458b6C89106",
	},
	"base": {
		"baseswap":  "0x327Df1E6de05895d2ab08513aaDD9313Fe505d86",
		"sushiswap": "0x6BDED42c6DA8FBf0d2bA55B2fa120C5e0c8D7891",
		"uniswap":   "0x2626664c2603336E57B271c5C0b26F421741e481",
	},
}

func routerFor(chainName, dexID string) string {
	if byDex, ok := dexIDToRouter[strings.ToLower(chainName)]; ok {
		return byDex[strings.ToLower(dexID)]
	}
	return ""
}

var logger = log.New("component", "routes")

type dexScreenerTokenResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID     string             `json:"chainId"`
	DexID       string             `json:"dexId"`
	Labels      []string           `json:"labels"`
	PairAddress string             `json:"pairAddress"`
	BaseToken   dexScreenerToken   `json:"baseToken"`
	QuoteToken  dexScreenerToken   `json:"quoteToken"`
	Liquidity   *dexScreenerLiq    `json:"liquidity"`
	PriceUSD    string             `json:"priceUsd"`
	Volume      *dexScreenerVolume `json:"volume"`
}

type dexScreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexScreenerLiq struct {
	USD float64 `json:"usd"`
}

type dexScreenerVolume struct {
	H24 float64 `json:"h24"`
}

// Client is the Route Discovery Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	namer      ChainNamer
}

// New builds a Client against the default DexScreener base URL.
func New(namer ChainNamer) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: autoDetectTimeout},
		baseURL:    defaultBaseURL,
		namer:      namer,
	}
}

// WithBaseURL overrides the aggregator base URL, for tests that point the
// client at an httptest.Server instead of the real DexScreener API.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// GetPairs returns all known pairs for token across every chain the
// aggregator indexes, sorted by liquidity_usd descending.
func (c *Client) GetPairs(ctx context.Context, token string) ([]DexPair, error) {
	url := fmt.Sprintf("%s/tokens/%s", c.baseURL, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeDexScreenerError, "build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeExternalTimeout, "dexscreener request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerr.New(pkgerr.CodeDexScreenerError, fmt.Sprintf("dexscreener API error: %d", resp.StatusCode))
	}

	var parsed dexScreenerTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pkgerr.Wrap(pkgerr.CodeDexScreenerError, "decode dexscreener response", err)
	}

	pairs := make([]DexPair, 0, len(parsed.Pairs))
	for _, p := range parsed.Pairs {
		pairs = append(pairs, toDexPair(p))
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].LiquidityUSD > pairs[j].LiquidityUSD })

	logger.Info("fetched pairs", "token", token, "count", len(pairs))
	return pairs, nil
}

func toDexPair(p dexScreenerPair) DexPair {
	var liq, vol float64
	if p.Liquidity != nil {
		liq = p.Liquidity.USD
	}
	if p.Volume != nil {
		vol = p.Volume.H24
	}
	var price float64
	fmt.Sscanf(p.PriceUSD, "%f", &price)

	return DexPair{
		Chain:        p.ChainID,
		DexID:        p.DexID,
		Labels:       p.Labels,
		PairAddress:  p.PairAddress,
		BaseToken:    DexToken{Address: p.BaseToken.Address, Name: p.BaseToken.Name, Symbol: p.BaseToken.Symbol},
		QuoteToken:   DexToken{Address: p.QuoteToken.Address, Name: p.QuoteToken.Name, Symbol: p.QuoteToken.Symbol},
		LiquidityUSD: liq,
		PriceUSD:     price,
		Volume24hUSD: vol,
	}
}

// GetPairsOn filters GetPairs' result down to a single chain.
func (c *Client) GetPairsOn(ctx context.Context, token string, chainID uint64) ([]DexPair, error) {
	all, err := c.GetPairs(ctx, token)
	if err != nil {
		return nil, err
	}
	filtered := make([]DexPair, 0, len(all))
	for _, p := range all {
		id, ok := resolveChainID(c.namer, p.Chain)
		if ok && id == chainID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func resolveChainID(namer ChainNamer, dexscreenerName string) (uint64, bool) {
	if id, ok := dexscreenerNameToChainID[strings.ToLower(dexscreenerName)]; ok {
		return id, true
	}
	if namer != nil {
		return namer.ChainIDByName(dexscreenerName)
	}
	return 0, false
}

// AutoDetect implements the base spec's §4.3 selection rule: partition into
// V2-compatible and non-V2 sets, prefer the highest-liquidity V2 pair, fall
// back to the highest-liquidity pair overall with HasV2Liquidity=false.
func (c *Client) AutoDetect(ctx context.Context, token string) (*DiscoveredRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, autoDetectTimeout)
	defer cancel()

	pairs, err := c.GetPairs(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, pkgerr.New(pkgerr.CodeDexScreenerError, "token not found on any supported chain")
	}

	var v2, nonV2 []DexPair
	for _, p := range pairs {
		if p.IsV2Compatible() {
			v2 = append(v2, p)
		} else {
			nonV2 = append(nonV2, p)
		}
	}

	var chosen DexPair
	hasV2 := len(v2) > 0
	if hasV2 {
		chosen = v2[0] // already sorted by liquidity desc
	} else {
		chosen = nonV2[0]
	}

	chainID, _ := resolveChainID(c.namer, chosen.Chain)
	sameChain := sameChainPairs(pairs, chosen.Chain)

	route := &DiscoveredRoute{
		ChainID:        chainID,
		ChainName:      chosen.Chain,
		PrimaryRouter:  routerFor(chosen.Chain, chosen.DexID),
		AllRouters:     distinctRouters(sameChain),
		HasV2Liquidity: hasV2,
		TotalPairCount: len(sameChain),
	}
	return route, nil
}

func sameChainPairs(pairs []DexPair, chain string) []DexPair {
	out := make([]DexPair, 0, len(pairs))
	for _, p := range pairs {
		if strings.EqualFold(p.Chain, chain) {
			out = append(out, p)
		}
	}
	return out
}

func distinctRouters(pairs []DexPair) []string {
	seen := make(map[string]bool)
	var routers []string
	for _, p := range pairs {
		r := routerFor(p.Chain, p.DexID)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		routers = append(routers, r)
	}
	return routers
}

// FetchSnapshot enriches a cache hit with best-effort live market data,
// bounded by the 3s timeout named in base spec §4.9 step 6. Failures are
// soft: callers get (nil, err) and proceed without a snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, token string, chainID uint64) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	pairs, err := c.GetPairsOn(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, pkgerr.New(pkgerr.CodeDexScreenerError, "no pairs for snapshot enrichment")
	}
	best := pairs[0]
	return &Snapshot{
		PriceUSD:     best.PriceUSD,
		LiquidityUSD: best.LiquidityUSD,
		Volume24hUSD: best.Volume24hUSD,
		PairAddress:  best.PairAddress,
	}, nil
}

// Package chainregistry holds the compile-time-initialized mapping from
// chain_id to ChainDescriptor (base spec §4.2). The seven supported EVM
// chains are hard-coded; Solana is represented only as the sentinel id 900
// so callers can detect it before attempting any EVM-specific lookup.
//
// Addresses reuse go-ethereum's common.Address instead of a hand-rolled
// 20-byte type, following the teacher's convention throughout
// core/vm, core/state and common itself.
package chainregistry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmsentry/pers/pkgerr"
)

// SolanaChainID is the sentinel id denoting the non-EVM, metadata-only path.
const SolanaChainID uint64 = 900

// Router is one AMM router known for a given chain. Order within
// ChainDescriptor.Routers defines fallback preference; index 0 is primary.
type Router struct {
	Name    string
	Address common.Address
}

// ChainDescriptor is immutable once constructed; the registry never mutates
// an entry after New.
type ChainDescriptor struct {
	ChainID        uint64
	DisplayName    string
	NativeSymbol   string
	WrappedNative  common.Address
	Routers        []Router
	RPCEndpoints   []string // ordered: managed endpoint first (if any), then public fallbacks
}

// PrimaryRouter returns the fallback-preferred router, i.e. Routers[0].
func (c ChainDescriptor) PrimaryRouter() Router {
	return c.Routers[0]
}

func addr(hex string) common.Address { return common.HexToAddress(hex) }

// Registry is the process-wide, read-only chain table. It is safe for
// concurrent use from any number of goroutines because it is never mutated
// after New.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]ChainDescriptor
}

// New builds the registry from the compiled-in canonical chain set (base
// spec §6), optionally applying per-chain RPC URL overrides (e.g. from
// config.Config.RPCOverrides) by prepending them ahead of the compiled-in
// endpoints.
func New(rpcOverrides map[uint64]string, alchemyAPIKey string) *Registry {
	r := &Registry{chains: defaultChains(alchemyAPIKey)}
	for chainID, override := range rpcOverrides {
		if d, ok := r.chains[chainID]; ok {
			d.RPCEndpoints = append([]string{override}, d.RPCEndpoints...)
			r.chains[chainID] = d
		}
	}
	return r
}

// Get returns the descriptor for chainID, or ConfigUnsupportedChain if the
// chain isn't one of the seven canonical EVM chains.
func (r *Registry) Get(chainID uint64) (ChainDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.chains[chainID]
	if !ok {
		return ChainDescriptor{}, pkgerr.New(pkgerr.CodeConfigUnsupportedChain, "unsupported chain_id")
	}
	return d, nil
}

// ChainIDByName resolves a route-discovery chain "name" field (as returned
// by DexPair.Chain) back to its numeric chain_id, case-insensitively.
func (r *Registry) ChainIDByName(name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lower := strings.ToLower(name)
	for id, d := range r.chains {
		if strings.ToLower(d.DisplayName) == lower {
			return id, true
		}
	}
	return 0, false
}

func managedURL(subdomain, apiKey string) string {
	if apiKey == "" {
		return ""
	}
	return "https://" + subdomain + ".g.alchemy.com/v2/" + apiKey
}

func defaultChains(apiKey string) map[uint64]ChainDescriptor {
	build := func(id uint64, name, symbol, wrapped, subdomain, publicFallback string, routers []Router) ChainDescriptor {
		var endpoints []string
		if m := managedURL(subdomain, apiKey); m != "" {
			endpoints = append(endpoints, m)
		}
		endpoints = append(endpoints, publicFallback)
		return ChainDescriptor{
			ChainID:       id,
			DisplayName:   name,
			NativeSymbol:  symbol,
			WrappedNative: addr(wrapped),
			Routers:       routers,
			RPCEndpoints:  endpoints,
		}
	}

	chains := map[uint64]ChainDescriptor{
		1: build(1, "Ethereum", "ETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			"eth-mainnet", "https://eth.llamarpc.com",
			[]Router{{"Uniswap V2", addr("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")}}),
		56: build(56, "BNB Smart Chain", "BNB", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
			"bnb-mainnet", "https://bsc-dataseed.binance.org",
			[]Router{{"PancakeSwap V2", addr("0x10ED43C718714eb63d5aA57B78B54704E256024E")}}),
		137: build(137, "Polygon", "MATIC", "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
			"polygon-mainnet", "https://polygon-rpc.com",
			[]Router{{"QuickSwap", addr("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff")}}),
		42161: build(42161, "Arbitrum One", "ETH", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
			"arb-mainnet", "https://arb1.arbitrum.io/rpc",
			[]Router{{"Camelot", addr("0xc873fEcbd354f5A56E00E710B90EF4201db2448d")}}),
		10: build(10, "Optimism", "ETH", "0x4200000000000000000000000000000000000006",
			"opt-mainnet", "https://mainnet.optimism.io",
			[]Router{{"SushiSwap", addr("0x4C5D5234f232BD2D76B96aA33F5AE4FCF0E4BFAb")}}),
		43114: build(43114, "Avalanche", "AVAX", "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7",
			"avax-mainnet", "https://api.avax.network/ext/bc/C/rpc",
			[]Router{{"TraderJoe", addr("0x60aE616a2155Ee3d9A68541Ba4544862310933d4")}}),
		8453: build(8453, "Base", "ETH", "0x4200000000000000000000000000000000000006",
			"base-mainnet", "https://mainnet.base.org",
			[]Router{{"PancakeSwap V2", addr("0x02a84c1b3BBD7401a5f7fa98a384EBC70bB5749E")}}),
	}
	return chains
}

// SupportedChainIDs returns the canonical EVM chain ids the registry knows
// about, sorted ascending. Useful for tests and for documenting supported
// chains in callers that enumerate them.
func (r *Registry) SupportedChainIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

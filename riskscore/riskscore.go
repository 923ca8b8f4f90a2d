// Package riskscore implements PERS — Pre-Execution Risk Scoring (base spec
// §4.7): mapping a honeypot.Result (plus, for the weighted variant, market
// context) onto a bounded 0–100 integer score and a risk Level.
//
// Two composers are exported rather than one, per Open Question #2 (base
// spec §9): the flat ladder (Score) and the original_source's weighted
// five-component composer (Compose) disagree on edge cases such as
// (sell_reverted=true, loss=100%, AC=50) — the ladder yields 100, the
// composer 86 when no route is known. This implementation does not attempt to unify them; Score
// is canonical for the honeypot-check-equivalent surface, Compose for the
// analyze-token-equivalent surface, matching SPEC_FULL.md §B.3.
package riskscore

import (
	"fmt"

	"github.com/evmsentry/pers/honeypot"
	"github.com/evmsentry/pers/routes"
)

// Level is the human-facing risk tier a Total maps onto.
type Level string

const (
	LevelSafe     Level = "Safe"
	LevelLow      Level = "Low"
	LevelMedium   Level = "Medium"
	LevelHigh     Level = "High"
	LevelCritical Level = "Critical"
)

// levelFor maps a 0-100 total onto its Level per base spec §4.7's bands.
func levelFor(total int) Level {
	switch {
	case total <= 20:
		return LevelSafe
	case total <= 40:
		return LevelLow
	case total <= 60:
		return LevelMedium
	case total <= 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Flat is the output of the flat-ladder Score: a bare total and level, no
// component breakdown — this is the lightweight variant the primary
// `/honeypot/check`-equivalent path uses.
type Flat struct {
	Total int
	Level Level
}

// Score implements base spec §4.7's primary table exactly: first matching
// condition wins a base score, a 0/50 access-control penalty is added only
// when loss exceeds 5%, and the sum is clamped at 100.
func Score(r honeypot.Result) Flat {
	base := baseScore(r)
	penalty := 0
	if r.TotalLossPercent > 5 {
		penalty = r.AccessControlPenalty
	}
	total := base + penalty
	if total > 100 {
		total = 100
	}
	return Flat{Total: total, Level: levelFor(total)}
}

func baseScore(r honeypot.Result) int {
	switch {
	case !r.BuySuccess && !r.SellSuccess && !r.IsHoneypot && !r.SellReverted:
		return 70 // unverified; base spec treats this as HIGH risk (Open Question #1)
	case r.SellReverted:
		return 100
	case r.IsHoneypot:
		return 95
	case r.TotalLossPercent > 50:
		return 80
	case r.TotalLossPercent > 30:
		return 60
	case r.TotalLossPercent > 10:
		return 40
	case r.TotalLossPercent > 5:
		return 20
	default:
		return 10
	}
}

// Components is the weighted composer's five named subscores, each in
// [0,100] before weighting.
type Components struct {
	Honeypot    int
	Tax         int
	Liquidity   int
	Contract    int
	MevExposure int
}

// BreakdownItem documents one weighted component's contribution, for
// callers that want to show their work (e.g. the analyze-token response).
type BreakdownItem struct {
	Name   string
	Score  int
	Weight float64
	Reason string
}

// RiskScore is the richer, weighted-composition output (base spec §3.1).
type RiskScore struct {
	Total          int
	Level          Level
	Confidence     int
	Components     Components
	Breakdown      []BreakdownItem
	Recommendation string
	IsGrayArea     bool
}

const (
	weightHoneypot = 0.35
	weightTax      = 0.25
	weightMev      = 0.15
	weightLiquid   = 0.15
	weightContract = 0.10
)

// grayAreaBand is how close (in points) a total must land to a level
// boundary to be flagged IsGrayArea — a decision this implementation makes
// since base spec §3.1 names the field without specifying its derivation
// (SPEC_FULL.md §B.3, recorded in DESIGN.md).
const grayAreaBand = 5

var levelBoundaries = []int{20, 40, 60, 80}

// Compose implements the "richer composition" named in base spec §4.7:
// five weighted subscores (honeypot 35%, tax 25%, mev/slippage 15%,
// liquidity 15%, contract verification 10%), each derived from its own
// threshold ladder, plus a confidence score and gray-area flag.
//
// route may be nil (no market data available); liquidity then falls back
// to a neutral mid-risk subscore rather than a false high or low signal.
func Compose(r honeypot.Result, route *routes.DiscoveredRoute) RiskScore {
	comp := Components{
		Honeypot:    honeypotComponent(r),
		Tax:         taxComponent(r),
		Liquidity:   liquidityComponent(route),
		Contract:    contractComponent(r),
		MevExposure: mevComponent(r),
	}

	weighted := float64(comp.Honeypot)*weightHoneypot +
		float64(comp.Tax)*weightTax +
		float64(comp.MevExposure)*weightMev +
		float64(comp.Liquidity)*weightLiquid +
		float64(comp.Contract)*weightContract

	total := int(weighted + 0.5)
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	// base spec §3.2 invariant: components.honeypot >= 95 must yield
	// level in {High, Critical}. The weighted sum alone can't guarantee
	// this when the other four components are all low (e.g. a confirmed
	// honeypot with no recorded loss, clean contract, unknown liquidity),
	// so a conclusive honeypot signal floors the total at the High band.
	if comp.Honeypot >= 95 && total <= 60 {
		total = 61
	}
	level := levelFor(total)

	breakdown := []BreakdownItem{
		{Name: "honeypot", Score: comp.Honeypot, Weight: weightHoneypot, Reason: r.Reason},
		{Name: "tax", Score: comp.Tax, Weight: weightTax, Reason: fmt.Sprintf("round-trip loss %.2f%%", r.TotalLossPercent)},
		{Name: "mev_exposure", Score: comp.MevExposure, Weight: weightMev, Reason: "tax asymmetry / slippage proxy"},
		{Name: "liquidity", Score: comp.Liquidity, Weight: weightLiquid, Reason: liquidityReason(route)},
		{Name: "contract", Score: comp.Contract, Weight: weightContract, Reason: contractReason(r)},
	}

	return RiskScore{
		Total:          total,
		Level:          level,
		Confidence:     confidence(r, route),
		Components:     comp,
		Breakdown:      breakdown,
		Recommendation: recommendationFor(level, r),
		IsGrayArea:     isGrayArea(total),
	}
}

func honeypotComponent(r honeypot.Result) int {
	// Reuses the flat ladder's base-score ladder as the honeypot subscore:
	// it is, structurally, the same signal the ladder's base table encodes.
	return baseScore(r)
}

func taxComponent(r honeypot.Result) int {
	switch {
	case r.TotalLossPercent > 50:
		return 100
	case r.TotalLossPercent > 30:
		return 80
	case r.TotalLossPercent > 10:
		return 60
	case r.TotalLossPercent > 5:
		return 30
	default:
		return 10
	}
}

func mevComponent(r honeypot.Result) int {
	// Slippage/MEV exposure proxy: a large gap between buy and sell tax is
	// itself a signal of an asymmetric, front-runnable fee structure.
	asymmetry := r.BuyTaxPercent - r.SellTaxPercent
	if asymmetry < 0 {
		asymmetry = -asymmetry
	}
	switch {
	case r.TotalLossPercent > 10 || asymmetry > 5:
		return 70
	case r.TotalLossPercent > 5:
		return 40
	default:
		return 15
	}
}

func liquidityComponent(route *routes.DiscoveredRoute) int {
	if route == nil {
		return 50 // no market data: neutral, not falsely safe or falsely risky
	}
	if !route.HasV2Liquidity {
		return 80
	}
	snapshot := route.MarketSnapshot
	if snapshot == nil {
		return 50
	}
	switch {
	case snapshot.LiquidityUSD < 1_000:
		return 90
	case snapshot.LiquidityUSD < 10_000:
		return 60
	case snapshot.LiquidityUSD < 100_000:
		return 30
	default:
		return 10
	}
}

func contractComponent(r honeypot.Result) int {
	if r.AccessControlPenalty > 0 {
		return 80
	}
	return 10
}

func confidence(r honeypot.Result, route *routes.DiscoveredRoute) int {
	score := 50
	if route != nil {
		score += 10
	}
	if route != nil && route.MarketSnapshot != nil {
		score += 10
	}
	if r.Simulated {
		score += 25
	}
	if score > 100 {
		score = 100
	}
	return score
}

func isGrayArea(total int) bool {
	for _, boundary := range levelBoundaries {
		diff := total - boundary
		if diff < 0 {
			diff = -diff
		}
		if diff <= grayAreaBand {
			return true
		}
	}
	return false
}

func recommendationFor(level Level, r honeypot.Result) string {
	switch level {
	case LevelCritical:
		return "Do not trade — conclusive honeypot signal"
	case LevelHigh:
		if r.Simulated {
			return "Avoid — high risk confirmed by simulation"
		}
		return "Avoid — high risk, unverified by simulation"
	case LevelMedium:
		return "Proceed with caution — review taxes and liquidity before trading"
	case LevelLow:
		return "Likely safe — minor risk factors present"
	default:
		return "No significant risk factors detected"
	}
}

func liquidityReason(route *routes.DiscoveredRoute) string {
	if route == nil {
		return "no market data available"
	}
	if !route.HasV2Liquidity {
		return "no V2-compatible liquidity pool"
	}
	if route.MarketSnapshot == nil {
		return "liquidity pool found, no live snapshot"
	}
	return fmt.Sprintf("liquidity_usd=%.2f", route.MarketSnapshot.LiquidityUSD)
}

func contractReason(r honeypot.Result) string {
	if r.AccessControlPenalty > 0 {
		return "access-control red flags present"
	}
	return "no access-control red flags"
}

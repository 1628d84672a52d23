// Package sizing computes share counts for initial entries and
// pyramid adds from configured portfolio risk parameters, scaled down
// by the prevailing market-regime exposure band.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/config"
)

// Tranche is a proposed entry or pyramid order: shares to buy at a
// reference price, and the dollar amount that costs (shares × price).
type Tranche struct {
	Shares    decimal.Decimal
	Price     decimal.Decimal
	DollarAmt decimal.Decimal
}

// Sizer turns portfolio-level risk parameters into per-trade share
// counts for the Breakout thread's size-on-entry step.
type Sizer struct {
	cfg config.PositionSizingConfig
}

func NewSizer(cfg config.PositionSizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// ExposureScale returns the fraction (0-1) of the configured
// max-position-pct currently permitted, derived from the upper bound
// of the regime calculator's exposure band. Callers pass exposureMax from
// the latest regime snapshot (0-100).
func ExposureScale(exposureMax int) decimal.Decimal {
	if exposureMax <= 0 {
		return decimal.Zero
	}
	if exposureMax >= 100 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(exposureMax)).Div(decimal.NewFromInt(100))
}

// InitialEntry sizes a new position's first tranche: initial_pct of
// portfolio value, capped at max_position_pct, scaled by the current
// exposure band, divided by price.
func (s *Sizer) InitialEntry(price decimal.Decimal, exposureMax int) (Tranche, error) {
	return s.sizeTranche(price, s.cfg.InitialPct, exposureMax)
}

// Pyramid1 sizes the first add-on tranche (pyramid1_pct).
func (s *Sizer) Pyramid1(price decimal.Decimal, exposureMax int) (Tranche, error) {
	return s.sizeTranche(price, s.cfg.Pyramid1Pct, exposureMax)
}

// Pyramid2 sizes the second add-on tranche (pyramid2_pct).
func (s *Sizer) Pyramid2(price decimal.Decimal, exposureMax int) (Tranche, error) {
	return s.sizeTranche(price, s.cfg.Pyramid2Pct, exposureMax)
}

func (s *Sizer) sizeTranche(price decimal.Decimal, pct float64, exposureMax int) (Tranche, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return Tranche{}, fmt.Errorf("price must be positive, got %s", price.String())
	}
	if s.cfg.PortfolioValue <= 0 {
		return Tranche{}, fmt.Errorf("position_sizing.portfolio_value is not configured")
	}

	effectivePct := pct
	maxPct := s.cfg.MaxPositionPct
	if maxPct > 0 && effectivePct > maxPct {
		effectivePct = maxPct
	}

	portfolioValue := decimal.NewFromFloat(s.cfg.PortfolioValue)
	dollarAmt := portfolioValue.Mul(decimal.NewFromFloat(effectivePct / 100))
	dollarAmt = dollarAmt.Mul(ExposureScale(exposureMax))

	shares := dollarAmt.DivRound(price, 0)
	if shares.LessThanOrEqual(decimal.Zero) {
		return Tranche{Shares: decimal.Zero, Price: price, DollarAmt: decimal.Zero}, nil
	}
	actualAmt := shares.Mul(price)
	return Tranche{Shares: shares, Price: price, DollarAmt: actualAmt}, nil
}

// RiskPerShare returns the dollar risk per share between an entry
// price and a stop price, used by MaxSharesByRisk to relate position
// size to account_risk_pct.
func RiskPerShare(entry, stop decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop)
	if risk.IsNegative() {
		return decimal.Zero
	}
	return risk
}

// MaxSharesByRisk bounds a tranche's share count so the position's
// total dollar risk does not exceed account_risk_pct of portfolio
// value.
func (s *Sizer) MaxSharesByRisk(entry, stop decimal.Decimal) decimal.Decimal {
	riskPerShare := RiskPerShare(entry, stop)
	if riskPerShare.LessThanOrEqual(decimal.Zero) || s.cfg.PortfolioValue <= 0 || s.cfg.AccountRiskPct <= 0 {
		return decimal.Zero
	}
	maxRiskDollars := decimal.NewFromFloat(s.cfg.PortfolioValue).Mul(decimal.NewFromFloat(s.cfg.AccountRiskPct / 100))
	return maxRiskDollars.DivRound(riskPerShare, 0)
}

package sizing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/sizing"
)

func testConfig() config.PositionSizingConfig {
	return config.PositionSizingConfig{
		PortfolioValue: 100000,
		AccountRiskPct: 1.0,
		MaxPositionPct: 25,
		InitialPct:     20,
		Pyramid1Pct:    10,
		Pyramid2Pct:    10,
	}
}

func TestExposureScaleClampsToUnitRange(t *testing.T) {
	cases := []struct {
		exposureMax int
		want        string
	}{
		{-10, "0"},
		{0, "0"},
		{50, "0.5"},
		{100, "1"},
		{150, "1"},
	}
	for _, tc := range cases {
		got := sizing.ExposureScale(tc.exposureMax)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("ExposureScale(%d) = %s, want %s", tc.exposureMax, got, tc.want)
		}
	}
}

func TestInitialEntrySizesToPortfolioPct(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	tranche, err := s.InitialEntry(decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("InitialEntry: %v", err)
	}
	// 20% of 100000 = 20000, fully exposed, at $100/share = 200 shares.
	if !tranche.Shares.Equal(decimal.NewFromInt(200)) {
		t.Errorf("shares = %s, want 200", tranche.Shares)
	}
}

func TestInitialEntryScalesDownWithExposureBand(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	tranche, err := s.InitialEntry(decimal.NewFromInt(100), 50)
	if err != nil {
		t.Fatalf("InitialEntry: %v", err)
	}
	// 20% of 100000 = 20000, at 50% exposure = 10000, at $100/share = 100 shares.
	if !tranche.Shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("shares = %s, want 100", tranche.Shares)
	}
}

func TestInitialEntryCapsAtMaxPositionPct(t *testing.T) {
	cfg := testConfig()
	cfg.InitialPct = 40 // exceeds MaxPositionPct of 25
	s := sizing.NewSizer(cfg)
	tranche, err := s.InitialEntry(decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("InitialEntry: %v", err)
	}
	// capped at 25% of 100000 = 25000, at $100/share = 250 shares.
	if !tranche.Shares.Equal(decimal.NewFromInt(250)) {
		t.Errorf("shares = %s, want 250 (capped at max_position_pct)", tranche.Shares)
	}
}

func TestInitialEntryRejectsNonPositivePrice(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	if _, err := s.InitialEntry(decimal.Zero, 100); err == nil {
		t.Fatal("expected error for zero price")
	}
	if _, err := s.InitialEntry(decimal.NewFromInt(-5), 100); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestInitialEntryRejectsUnconfiguredPortfolio(t *testing.T) {
	cfg := testConfig()
	cfg.PortfolioValue = 0
	s := sizing.NewSizer(cfg)
	if _, err := s.InitialEntry(decimal.NewFromInt(100), 100); err == nil {
		t.Fatal("expected error when portfolio_value is unconfigured")
	}
}

func TestPyramidTranchesUseTheirOwnPct(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	p1, err := s.Pyramid1(decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("Pyramid1: %v", err)
	}
	p2, err := s.Pyramid2(decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("Pyramid2: %v", err)
	}
	// 10% of 100000 / 100 = 100 shares for both.
	if !p1.Shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pyramid1 shares = %s, want 100", p1.Shares)
	}
	if !p2.Shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pyramid2 shares = %s, want 100", p2.Shares)
	}
}

func TestRiskPerShareFloorsAtZero(t *testing.T) {
	entry := decimal.NewFromInt(100)
	stop := decimal.NewFromInt(90)
	if got := sizing.RiskPerShare(entry, stop); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("RiskPerShare(100,90) = %s, want 10", got)
	}
	// stop above entry (shouldn't happen, but must not go negative)
	if got := sizing.RiskPerShare(stop, entry); !got.Equal(decimal.Zero) {
		t.Errorf("RiskPerShare(90,100) = %s, want 0", got)
	}
}

func TestMaxSharesByRiskBoundsOnAccountRisk(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	// account_risk_pct 1% of 100000 = 1000 max risk dollars, at $10/share risk -> 100 shares.
	got := s.MaxSharesByRisk(decimal.NewFromInt(100), decimal.NewFromInt(90))
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("MaxSharesByRisk = %s, want 100", got)
	}
}

func TestMaxSharesByRiskZeroWhenStopAboveEntry(t *testing.T) {
	s := sizing.NewSizer(testConfig())
	got := s.MaxSharesByRisk(decimal.NewFromInt(90), decimal.NewFromInt(100))
	if !got.Equal(decimal.Zero) {
		t.Errorf("MaxSharesByRisk = %s, want 0 when stop is above entry", got)
	}
}

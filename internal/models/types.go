// Package models defines the domain records the surveillance engine
// operates on: positions, alerts, market-regime snapshots, and provider
// configuration, plus the market-data primitives (bars, quotes, futures
// snapshots) the provider layer exchanges.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies a bar interval.
type Timeframe string

const (
	Timeframe1d Timeframe = "1d"
	Timeframe1w Timeframe = "1w"
)

// Bar is one OHLCV candle for an index or equity.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Quote is a realtime or delayed snapshot for a single symbol.
type Quote struct {
	Symbol          string          `json:"symbol"`
	Last            decimal.Decimal `json:"last"`
	Bid             decimal.Decimal `json:"bid"`
	Ask             decimal.Decimal `json:"ask"`
	Volume          decimal.Decimal `json:"volume"`
	AvgVolume       decimal.Decimal `json:"avgVolume"`
	High            decimal.Decimal `json:"high"`
	Low             decimal.Decimal `json:"low"`
	Open            decimal.Decimal `json:"open"`
	Close           decimal.Decimal `json:"close"`
	Timestamp       time.Time       `json:"timestamp"`
	VolumeAvailable bool            `json:"volumeAvailable"`
}

// FuturesSnapshot is an overnight index-futures read.
type FuturesSnapshot struct {
	ESPct     decimal.Decimal `json:"esPct"`
	NQPct     decimal.Decimal `json:"nqPct"`
	YMPct     decimal.Decimal `json:"ymPct"`
	Timestamp time.Time       `json:"timestamp"`
}

// PositionState is the signed lifecycle code of a tracked equity.
type PositionState int

const (
	StateWatching PositionState = 0
	StateEntry1   PositionState = 1
	StateEntry2   PositionState = 2
	StateEntry3   PositionState = 3
	StateFailed   PositionState = -1
	StateStopped  PositionState = -2
)

// StateExitedReentry is -1.5; Go has no fractional int consts, so it is
// modeled as its own named float-backed type used only for this one code.
type FractionalState float64

const StateExitedReentry FractionalState = -1.5

// CanTransition reports whether moving a position from `from` to `to`
// (expressed as float64 so -1.5 and "closed" sentinels can be passed
// through the same call site as the integer codes) is allowed by the
// transition graph below.
func CanTransition(from PositionState, to float64) bool {
	switch {
	case from == StateWatching:
		return to == float64(StateEntry1) || to == float64(StateFailed)
	case from == StateEntry1 || from == StateEntry2:
		if to == float64(StateStopped) || to == float64(StateExitedReentry) {
			return true
		}
		if from == StateEntry1 {
			return to == float64(StateEntry2)
		}
		return to == float64(StateEntry3)
	case from == StateEntry3:
		return to == float64(StateStopped) || to == float64(StateExitedReentry)
	default:
		return false
	}
}

// CanTransitionFrom is CanTransition generalized to accept the -1.5
// exited-reentry sentinel as a `from` state too, since Position.State
// is stored as float64 and PositionState cannot represent a
// fractional code.
func CanTransitionFrom(from float64, to float64) bool {
	if from == float64(StateExitedReentry) {
		return to == float64(StateWatching) || to == float64(StateStopped)
	}
	return CanTransition(PositionState(from), to)
}

// EntryTranche is one of up to three buy lots.
type EntryTranche struct {
	Shares decimal.Decimal `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Date   time.Time       `json:"date"`
}

// ExitTranche is one of up to two scheduled take-profit sells.
type ExitTranche struct {
	Shares decimal.Decimal `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Date   time.Time       `json:"date"`
}

// EightWeekHold is the persisted side-state for the 8-week-hold rule
// (an open question in how the 8-week rule persists across restarts).
type EightWeekHold struct {
	Active        bool      `json:"active"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	PowerMovePct  decimal.Decimal `json:"powerMovePct"`
	PowerMoveWeek int       `json:"powerMoveWeeks"`
}

// Position is a tracked equity with a CANSLIM lifecycle state.
type Position struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Portfolio string  `json:"portfolio"`
	State     float64 `json:"state"` // holds -2..3 including the -1.5 code

	// Setup attributes
	Pivot      decimal.Decimal `json:"pivot"`
	Pattern    string          `json:"pattern"`
	BaseStage  int             `json:"baseStage"`
	BaseDepth  decimal.Decimal `json:"baseDepthPct"`
	BaseLength int             `json:"baseLengthWeeks"`

	// Ratings snapshot
	RSRating       int             `json:"rsRating"`
	RS3Month       int             `json:"rs3Month"`
	RS6Month       int             `json:"rs6Month"`
	EPSRating      int             `json:"epsRating"`
	CompositeRating int            `json:"compositeRating"`
	SMRRating      string          `json:"smrRating"`
	ADRating       string          `json:"adRating"`
	UpDownVolRatio decimal.Decimal `json:"upDownVolRatio"`
	IndustryRank   int             `json:"industryRank"`
	FundCount      int             `json:"fundCount"`
	PriorUptrendPct decimal.Decimal `json:"priorUptrendPct"`

	// Tranches
	Entries    []EntryTranche `json:"entries"`
	Exits      []ExitTranche  `json:"exits"`
	ClosePrice decimal.Decimal `json:"closePrice"`
	CloseDate  time.Time       `json:"closeDate"`
	CloseReason string         `json:"closeReason"`

	TotalShares decimal.Decimal `json:"totalShares"`
	AvgCost     decimal.Decimal `json:"avgCost"`

	// Risk
	HardStopPct decimal.Decimal `json:"hardStopPct"`
	StopPrice   decimal.Decimal `json:"stopPrice"`

	// Tracking
	LastPrice      decimal.Decimal `json:"lastPrice"`
	MaxPrice       decimal.Decimal `json:"maxPrice"`
	MaxGainPct     decimal.Decimal `json:"maxGainPct"`
	HealthScore    decimal.Decimal `json:"healthScore"`
	HealthRating   string          `json:"healthRating"`
	EightWeekHold  *EightWeekHold  `json:"eightWeekHold,omitempty"`

	// Dates
	WatchDate         time.Time `json:"watchDate"`
	BreakoutDate       time.Time `json:"breakoutDate"`
	EntryDate          time.Time `json:"entryDate"`
	EarningsDate       time.Time `json:"earningsDate"`
	LastTransitionDate time.Time `json:"lastTransitionDate"`

	// per-symbol ephemeral marker for watchlist alt-entry
	ExtendedMarkerDate time.Time `json:"extendedMarkerDate,omitempty"`
	AltEntryTestCount  int       `json:"altEntryTestCount,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Recalculate derives TotalShares and AvgCost from the entry/exit
// ledger, enforcing the invariant:
// total_shares = Σ entry_shares − Σ tp_shares − close_shares.
func (p *Position) Recalculate() {
	entrySharesTotal := decimal.Zero
	costBasis := decimal.Zero
	for _, e := range p.Entries {
		entrySharesTotal = entrySharesTotal.Add(e.Shares)
		costBasis = costBasis.Add(e.Shares.Mul(e.Price))
	}

	totalShares := entrySharesTotal
	for _, x := range p.Exits {
		totalShares = totalShares.Sub(x.Shares)
	}
	if p.CloseReason != "" {
		totalShares = decimal.Zero
	}
	if totalShares.IsNegative() {
		totalShares = decimal.Zero
	}

	p.TotalShares = totalShares
	if entrySharesTotal.GreaterThan(decimal.Zero) {
		p.AvgCost = costBasis.DivRound(entrySharesTotal, 6)
	}
}

// AlertType is the top-level alert classification.
type AlertType string

const (
	AlertTypeStop      AlertType = "stop"
	AlertTypeProfit    AlertType = "profit"
	AlertTypePyramid   AlertType = "pyramid"
	AlertTypeAdd       AlertType = "add"
	AlertTypeAltEntry  AlertType = "alt_entry"
	AlertTypeTechnical AlertType = "technical"
	AlertTypeHealth    AlertType = "health"
	AlertTypeMarket    AlertType = "market"
	AlertTypeSystem    AlertType = "system"
)

// Priority is alert urgency.
type Priority int

const (
	P0 Priority = iota // immediate action
	P1                 // important
	P2                 // informational
)

func (p Priority) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	default:
		return "P2"
	}
}

// Alert is one evaluation outcome from a checker or the regime calculator.
type Alert struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	PositionID     string          `json:"positionId,omitempty"`
	Type           AlertType       `json:"type"`
	Subtype        string          `json:"subtype"`
	Priority       Priority        `json:"priority"`
	ThreadSource   string          `json:"threadSource"`
	Message        string          `json:"message"`
	Action         string          `json:"action,omitempty"`
	EmittedPrice   decimal.Decimal `json:"emittedPrice,omitempty"`
	Pivot          decimal.Decimal `json:"pivot,omitempty"`
	AvgCost        decimal.Decimal `json:"avgCost,omitempty"`
	PnLPct         decimal.Decimal `json:"pnlPct,omitempty"`
	MA21           decimal.Decimal `json:"ma21,omitempty"`
	MA50           decimal.Decimal `json:"ma50,omitempty"`
	MA200          decimal.Decimal `json:"ma200,omitempty"`
	VolumeRatio    decimal.Decimal `json:"volumeRatio,omitempty"`
	HealthScore    decimal.Decimal `json:"healthScore,omitempty"`
	MarketRegime   string          `json:"marketRegime,omitempty"`
	StateAtAlert   float64         `json:"stateAtAlert"`
	DaysInPosition int             `json:"daysInPosition,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedAt *time.Time      `json:"acknowledgedAt,omitempty"`

	// HoldMetadata carries the 8-week-hold side channel (Open Question 2);
	// it is never serialized into the persisted alert payload.
	HoldMetadata *EightWeekHold `json:"-"`
}

// DedupKey is the logical dedup identity of an alert.
func (a *Alert) DedupKey() string {
	return a.Symbol + "|" + string(a.Type) + "|" + a.Subtype
}

// MarketPhase classifies the follow-through-day state machine.
type MarketPhase string

const (
	PhaseConfirmedUptrend    MarketPhase = "confirmed_uptrend"
	PhaseRallyAttempt        MarketPhase = "rally_attempt"
	PhaseUptrendUnderPressure MarketPhase = "uptrend_under_pressure"
	PhaseCorrection          MarketPhase = "market_in_correction"
)

// RegimeLabel is the composite-score-derived label.
type RegimeLabel string

const (
	RegimeBullish RegimeLabel = "bullish"
	RegimeNeutral RegimeLabel = "neutral"
	RegimeBearish RegimeLabel = "bearish"
)

// MarketRegimeAlert is one daily snapshot of market state.
type MarketRegimeAlert struct {
	ID                string          `json:"id"`
	Date              time.Time       `json:"date"` // unique per calendar day
	DDaysSPY          int             `json:"dDaysSpy"`
	DDaysQQQ          int             `json:"dDaysQqq"`
	DDays5DDeltaSPY   int             `json:"dDays5dDeltaSpy"`
	DDays5DDeltaQQQ   int             `json:"dDays5dDeltaQqq"`
	TrendLabel        string          `json:"trendLabel"` // improving|worsening|flat
	MarketPhase       MarketPhase     `json:"marketPhase"`
	CompositeScore    decimal.Decimal `json:"compositeScore"`
	RegimeLabel       RegimeLabel     `json:"regimeLabel"`
	ExposureBandLow   int             `json:"exposureBandLow"`
	ExposureBandHigh  int             `json:"exposureBandHigh"`
	Futures           *FuturesSnapshot `json:"futures,omitempty"`
	AlertSent         bool            `json:"alertSent"`
}

// ProviderDomain is the market-data role a provider fulfils.
type ProviderDomain string

const (
	DomainHistorical ProviderDomain = "historical"
	DomainRealtime   ProviderDomain = "realtime"
	DomainFutures    ProviderDomain = "futures"
)

// ThrottleProfile bounds call rate for a provider.
type ThrottleProfile struct {
	CallsPerMinute  int `json:"callsPerMinute"`
	BurstSize       int `json:"burstSize"`
	MinDelaySeconds int `json:"minDelaySeconds"`
}

// ProviderConfig is a persisted provider definition.
type ProviderConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Domain         ProviderDomain  `json:"domain"`
	Implementation string          `json:"implementation"`
	Priority       int             `json:"priority"`
	Throttle       ThrottleProfile `json:"throttle"`
	Settings       map[string]any  `json:"settings"`
	Enabled        bool            `json:"enabled"`
}

// ProviderCredential is a secret tied to a ProviderConfig row.
type ProviderCredential struct {
	ProviderID string `json:"providerId"`
	Key        string `json:"key"`
	Value      string `json:"value"`
}

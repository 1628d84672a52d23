package monitor_test

import (
	"testing"

	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/monitor"
)

func TestEvaluateBreakoutRequiresVolumeConfirmation(t *testing.T) {
	pos := &models.Position{Symbol: "AAPL", Pivot: d(100)}
	quote := models.Quote{Last: d(101), Volume: d(1_000_000)}
	tech := monitor.Technicals{AvgVolume: d(1_000_000)} // ratio = 1.0, below the 1.4 threshold

	score := monitor.EvaluateBreakout(pos, quote, tech)
	if score.Triggered {
		t.Errorf("expected no breakout without volume confirmation, got %+v", score)
	}
}

func TestEvaluateBreakoutBelowPivotNeverTriggers(t *testing.T) {
	pos := &models.Position{Symbol: "AAPL", Pivot: d(100)}
	quote := models.Quote{Last: d(95), Volume: d(5_000_000)}
	tech := monitor.Technicals{AvgVolume: d(1_000_000)}

	score := monitor.EvaluateBreakout(pos, quote, tech)
	if score.Triggered {
		t.Error("a close below pivot should never trigger a breakout")
	}
}

func TestEvaluateBreakoutTriggersOnCleanCrossWithVolumeAndStrongRatings(t *testing.T) {
	pos := &models.Position{Symbol: "AAPL", Pivot: d(100), RSRating: 95, CompositeRating: 95, EPSRating: 95}
	quote := models.Quote{Last: d(101), Volume: d(2_000_000)}
	tech := monitor.Technicals{AvgVolume: d(1_000_000), SMA50: d(95), SMA200: d(85)}

	score := monitor.EvaluateBreakout(pos, quote, tech)
	if !score.Triggered {
		t.Errorf("expected a high-conviction breakout to trigger, got %+v", score)
	}
}

func TestEvaluateBreakoutZeroPivotProducesEmptyScore(t *testing.T) {
	pos := &models.Position{Symbol: "AAPL"}
	quote := models.Quote{Last: d(101), Volume: d(2_000_000)}
	tech := monitor.Technicals{AvgVolume: d(1_000_000)}

	score := monitor.EvaluateBreakout(pos, quote, tech)
	if score.Triggered || !score.Score.IsZero() {
		t.Errorf("expected an empty score without a pivot set, got %+v", score)
	}
}

func TestEvaluateBreakoutWeakRatingsDoNotTrigger(t *testing.T) {
	pos := &models.Position{Symbol: "AAPL", Pivot: d(100), RSRating: 40, CompositeRating: 35, EPSRating: 45}
	quote := models.Quote{Last: d(108), Volume: d(1_500_000)} // far above pivot (>5%), loses the proximity bonus
	tech := monitor.Technicals{AvgVolume: d(1_000_000)}

	score := monitor.EvaluateBreakout(pos, quote, tech)
	if score.Triggered {
		t.Errorf("weak ratings with a chased entry should not trigger, got %+v", score)
	}
}

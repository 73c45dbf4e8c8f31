package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCandleHelpers(t *testing.T) {
	c := Candle{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Open:      100,
		High:      110,
		Low:       90,
		Close:     105,
		Volume:    42,
	}
	if got, want := c.TypicalPrice(), (110.0+90.0+105.0)/3; got != want {
		t.Fatalf("typical price = %v, want %v", got, want)
	}
	if got, want := c.MidPrice(), 100.0; got != want {
		t.Fatalf("mid price = %v, want %v", got, want)
	}
	if !c.Bullish() {
		t.Fatalf("candle closing above open should be bullish")
	}
	c.Close = c.Open
	if c.Bullish() {
		t.Fatalf("candle closing at open should not be bullish")
	}
}

func TestIndicatorSnapshotOptionalBlocksOmitted(t *testing.T) {
	snap := IndicatorSnapshot{
		Timestamp: time.Unix(0, 0).UTC(),
		Close:     100,
		RSI:       55,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"vwap", "keltner", "squeeze", "volume_profile", "market_delta"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("optional block %q should be omitted when not computed", key)
		}
	}
	if _, ok := raw["rsi"]; !ok {
		t.Fatalf("mandatory field rsi missing from %s", data)
	}
}

func TestTradeRecordClosed(t *testing.T) {
	tr := TradeRecord{ID: "a", Timestamp: time.Now()}
	if tr.Closed() {
		t.Fatalf("record without exit time should not be closed")
	}
	tr.ExitTime = tr.Timestamp.Add(time.Hour)
	if !tr.Closed() {
		t.Fatalf("record with exit time should be closed")
	}
}

func TestRunResultJSONRoundTrip(t *testing.T) {
	res := RunResult{
		RunID:     "run-1",
		Mode:      ModeBacktest,
		Pair:      "BTCUSDT",
		Timeframe: "15m",
		Config:    RunConfig{Pair: "BTCUSDT", Timeframe: "15m", InitialCapital: 10000},
		Stats:     PerformanceStats{TotalTrades: 3, WinRate: 66.67},
		Trades: []TradeRecord{
			{ID: "t1", Symbol: "BTCUSDT", Action: ActionBuy, PnL: 200, IsWin: true},
		},
		EquityCurve: []EquityPoint{{Timestamp: time.Unix(0, 0).UTC(), Equity: 10000}},
		StartDate:   time.Unix(0, 0).UTC(),
		EndDate:     time.Unix(3600, 0).UTC(),
		Duration:    time.Hour,
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out RunResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.RunID != res.RunID || out.Mode != res.Mode || out.Stats.TotalTrades != 3 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out.Trades) != 1 || out.Trades[0].Action != ActionBuy {
		t.Fatalf("trades not preserved: %+v", out.Trades)
	}
}

package replay

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"portfolio-replay/internal/ledger"
	"portfolio-replay/internal/market"
	"portfolio-replay/internal/schedule"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

func pbar(t *testing.T, date string, open, closePrice float64) market.PriceBar {
	t.Helper()
	return market.PriceBar{Date: day(t, date), Open: open, Close: closePrice}
}

func priceSet(t *testing.T, series map[string][]market.PriceBar) *market.PriceSet {
	t.Helper()
	set := market.NewPriceSet()
	for instrument, bars := range series {
		set.Add(market.NewSeries(instrument, bars))
	}
	return set
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func defaultOptions() Options {
	return Options{InitialCash: 100000, CommissionRate: 0.001}
}

// 标准四日行情：2026-01-05(一) … 2026-01-08(四)。
func fourDaySet(t *testing.T) *market.PriceSet {
	t.Helper()
	return priceSet(t, map[string][]market.PriceBar{
		"2800.HK": {
			pbar(t, "2026-01-05", 9.8, 9.9),
			pbar(t, "2026-01-06", 10.0, 10.2),
			pbar(t, "2026-01-07", 10.3, 10.4),
			pbar(t, "2026-01-08", 10.5, 10.6),
		},
	})
}

func runSim(t *testing.T, set *market.PriceSet, opts Options, fills []schedule.Fill, start, end string) Result {
	t.Helper()
	sim, err := NewSimulator(set, opts, nil)
	if err != nil {
		t.Fatalf("NewSimulator returned error: %v", err)
	}
	result, err := sim.Run(context.Background(), fills, day(t, start), day(t, end))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return result
}

func TestRun_EndToEndBuy(t *testing.T) {
	fills := []schedule.Fill{{
		Instrument: "2800.HK",
		Side:       ledger.SideBuy,
		Quantity:   100,
		TargetDate: day(t, "2026-01-06"),
		EventID:    1,
	}}

	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")

	if len(result.Valuation) != 4 {
		t.Fatalf("expected 4 valuation points, got %d", len(result.Valuation))
	}
	// 成交日的快照先于成交：当日估值仍是纯现金。
	if !almostEqual(result.Valuation[1].Value, 100000) {
		t.Errorf("day-of-fill valuation = %f, want pre-fill 100000", result.Valuation[1].Value)
	}

	wantCash := 100000 - 100*10.0*1.001
	if !almostEqual(result.Final.Cash, wantCash) {
		t.Errorf("final cash = %f, want %f", result.Final.Cash, wantCash)
	}
	pos := result.Final.Position("2800.HK")
	if !almostEqual(pos.Size, 100) || !almostEqual(pos.AvgCost, 10.0) {
		t.Errorf("position = %+v, want size 100 avg cost 10", pos)
	}

	// 成交次日起估值包含持仓市值。
	if !almostEqual(result.Valuation[2].Value, wantCash+100*10.4) {
		t.Errorf("next-day valuation = %f, want %f", result.Valuation[2].Value, wantCash+100*10.4)
	}
	if !almostEqual(result.Valuation[3].Value, wantCash+100*10.6) {
		t.Errorf("last-day valuation = %f, want %f", result.Valuation[3].Value, wantCash+100*10.6)
	}

	// 每个标的的逐日市值序列与总估值对齐，同样先快照后成交。
	series := result.InstrumentValues["2800.HK"]
	if len(series) != 4 {
		t.Fatalf("instrument series has %d points, want 4", len(series))
	}
	if !almostEqual(series[1].Value, 0) {
		t.Errorf("day-of-fill instrument value = %f, want 0", series[1].Value)
	}
	if !almostEqual(series[2].Value, 100*10.4) {
		t.Errorf("next-day instrument value = %f, want %f", series[2].Value, 100*10.4)
	}

	if result.Executed != 1 || result.Capped != 0 || result.Skipped != 0 || len(result.Unresolved) != 0 {
		t.Errorf("counts wrong: %+v", result)
	}
	if !almostEqual(result.CommissionPaid, 100*10.0*0.001) {
		t.Errorf("commission paid = %f, want 1.0", result.CommissionPaid)
	}
	if len(result.Reports) != 1 || result.Reports[0].Status != StatusFilled {
		t.Fatalf("unexpected reports: %+v", result.Reports)
	}
	if !almostEqual(result.Reports[0].Price, 10.0) {
		t.Errorf("fill price = %f, want open 10.0", result.Reports[0].Price)
	}
}

func TestRun_SellTruncation(t *testing.T) {
	fills := []schedule.Fill{
		{Instrument: "2800.HK", Side: ledger.SideBuy, Quantity: 50, TargetDate: day(t, "2026-01-05"), EventID: 1},
		{Instrument: "2800.HK", Side: ledger.SideSell, Quantity: 80, TargetDate: day(t, "2026-01-07"), EventID: 2},
	}

	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")

	if result.Executed != 1 || result.Capped != 1 {
		t.Fatalf("expected 1 filled + 1 capped, got %+v", result)
	}
	sellReport := result.Reports[1]
	if sellReport.Status != StatusCapped {
		t.Fatalf("sell status = %s, want capped", sellReport.Status)
	}
	if !almostEqual(sellReport.ExecutedQty, 50) {
		t.Errorf("executed qty = %f, want capped 50", sellReport.ExecutedQty)
	}
	if pos := result.Final.Position("2800.HK"); pos.Size < 0 || !almostEqual(pos.Size, 0) {
		t.Errorf("position after capped sell = %f, want 0 and never negative", pos.Size)
	}

	wantCash := 100000 - 50*9.8*1.001 + 50*10.3*0.999
	if !almostEqual(result.Final.Cash, wantCash) {
		t.Errorf("final cash = %f, want %f", result.Final.Cash, wantCash)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("capped sell should be flagged with a warning")
	}
}

func TestRun_SellWithoutPosition(t *testing.T) {
	fills := []schedule.Fill{{
		Instrument: "2800.HK",
		Side:       ledger.SideSell,
		Quantity:   10,
		TargetDate: day(t, "2026-01-06"),
		EventID:    1,
	}}

	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")

	if result.Skipped != 1 || result.Executed != 0 {
		t.Fatalf("expected skipped sell, got %+v", result)
	}
	if !almostEqual(result.Final.Cash, 100000) {
		t.Errorf("skipped sell changed cash: %f", result.Final.Cash)
	}
}

func TestRun_DeferredFill(t *testing.T) {
	// 观测日历缺少 2026-01-06：目标日顺延到其后首个观测日成交，且只成交一次。
	set := priceSet(t, map[string][]market.PriceBar{
		"2800.HK": {
			pbar(t, "2026-01-05", 9.8, 9.9),
			pbar(t, "2026-01-07", 10.3, 10.4),
			pbar(t, "2026-01-08", 10.5, 10.6),
		},
	})
	fills := []schedule.Fill{{
		Instrument: "2800.HK",
		Side:       ledger.SideBuy,
		Quantity:   10,
		TargetDate: day(t, "2026-01-06"),
		EventID:    1,
	}}

	result := runSim(t, set, defaultOptions(), fills, "2026-01-05", "2026-01-08")

	if len(result.Reports) != 1 {
		t.Fatalf("expected exactly one execution, got %d reports", len(result.Reports))
	}
	report := result.Reports[0]
	if !report.ExecutedDate.Equal(day(t, "2026-01-07")) {
		t.Errorf("executed on %s, want 2026-01-07", report.ExecutedDate.Format("2006-01-02"))
	}
	if !almostEqual(report.Price, 10.3) {
		t.Errorf("deferred fill price = %f, want 10.3 open", report.Price)
	}
	if report.Note == "" {
		t.Errorf("deferred fill should carry a note")
	}
	if pos := result.Final.Position("2800.HK"); !almostEqual(pos.Size, 10) {
		t.Errorf("position = %f, want 10 (executed exactly once)", pos.Size)
	}
	if len(result.Unresolved) != 0 {
		t.Errorf("deferred fill wrongly reported unresolved")
	}
}

func TestRun_UnresolvedFill(t *testing.T) {
	fills := []schedule.Fill{
		{Instrument: "2800.HK", Side: ledger.SideBuy, Quantity: 10, TargetDate: day(t, "2026-01-06"), EventID: 1},
		{Instrument: "2800.HK", Side: ledger.SideBuy, Quantity: 5, TargetDate: day(t, "2026-01-09"), EventID: 2},
	}

	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")

	// 窗口结束仍未找到可成交日的委托要上报，不能悄悄丢弃；其余委托照常完成。
	if result.Executed != 1 {
		t.Fatalf("expected the in-window fill to execute, got %+v", result)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0].EventID != 2 {
		t.Fatalf("unresolved = %+v, want event 2", result.Unresolved)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("unresolved fill should produce a warning")
	}
	if len(result.Valuation) != 4 {
		t.Errorf("run did not complete: %d valuation points", len(result.Valuation))
	}
}

func TestRun_MissingInstrument(t *testing.T) {
	fills := []schedule.Fill{
		{Instrument: "2800.HK", Side: ledger.SideBuy, Quantity: 10, TargetDate: day(t, "2026-01-06"), EventID: 1},
		{Instrument: "9988.HK", Side: ledger.SideBuy, Quantity: 10, TargetDate: day(t, "2026-01-06"), EventID: 2},
	}

	// 默认配置：缺数据的委托跳过并警告，其余照常执行。
	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")
	if result.Executed != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 executed + 1 skipped, got %+v", result)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("missing instrument should produce a warning")
	}

	// 严格配置：直接中止。
	opts := defaultOptions()
	opts.AbortOnMissingData = true
	sim, err := NewSimulator(fourDaySet(t), opts, nil)
	if err != nil {
		t.Fatalf("NewSimulator returned error: %v", err)
	}
	if _, err := sim.Run(context.Background(), fills, day(t, "2026-01-05"), day(t, "2026-01-08")); !errors.Is(err, ErrMissingInstrument) {
		t.Fatalf("expected ErrMissingInstrument, got %v", err)
	}
}

func TestRun_SuspendedInstrumentWaitsForNextBar(t *testing.T) {
	// 并集日历包含 2026-01-06（另一标的在交易），但 2800.HK 当日停牌：
	// 委托等到该标的下一根日线才成交。
	set := priceSet(t, map[string][]market.PriceBar{
		"2800.HK": {
			pbar(t, "2026-01-05", 9.8, 9.9),
			pbar(t, "2026-01-07", 10.3, 10.4),
		},
		"9988.HK": {
			pbar(t, "2026-01-05", 80, 81),
			pbar(t, "2026-01-06", 82, 83),
			pbar(t, "2026-01-07", 84, 85),
		},
	})
	fills := []schedule.Fill{{
		Instrument: "2800.HK",
		Side:       ledger.SideBuy,
		Quantity:   10,
		TargetDate: day(t, "2026-01-06"),
		EventID:    1,
	}}

	result := runSim(t, set, defaultOptions(), fills, "2026-01-05", "2026-01-07")
	if len(result.Reports) != 1 {
		t.Fatalf("expected one report, got %d", len(result.Reports))
	}
	if !result.Reports[0].ExecutedDate.Equal(day(t, "2026-01-07")) {
		t.Errorf("executed on %s, want 2026-01-07", result.Reports[0].ExecutedDate.Format("2006-01-02"))
	}
	if !almostEqual(result.Reports[0].Price, 10.3) {
		t.Errorf("price = %f, want 10.3", result.Reports[0].Price)
	}
}

func TestRun_CommissionReconciles(t *testing.T) {
	fills := []schedule.Fill{
		{Instrument: "2800.HK", Side: ledger.SideBuy, Quantity: 100, TargetDate: day(t, "2026-01-06"), EventID: 1},
		{Instrument: "2800.HK", Side: ledger.SideSell, Quantity: 40, TargetDate: day(t, "2026-01-07"), EventID: 2},
	}

	result := runSim(t, fourDaySet(t), defaultOptions(), fills, "2026-01-05", "2026-01-08")

	var reportSum float64
	for _, report := range result.Reports {
		reportSum += report.Commission
	}
	if !almostEqual(result.CommissionPaid, reportSum) {
		t.Errorf("CommissionPaid %f != sum of per-fill commissions %f", result.CommissionPaid, reportSum)
	}

	wantCommission := 100*10.0*0.001 + 40*10.3*0.001
	if !almostEqual(result.CommissionPaid, wantCommission) {
		t.Errorf("CommissionPaid = %f, want %f", result.CommissionPaid, wantCommission)
	}

	// 与现金流对账：期初现金 − 期末现金 = 买入支出 − 卖出回款，差额即佣金。
	grossBuy := 100 * 10.0
	grossSell := 40 * 10.3
	wantCash := 100000 - grossBuy - 100*10.0*0.001 + grossSell - 40*10.3*0.001
	if !almostEqual(result.Final.Cash, wantCash) {
		t.Errorf("final cash = %f, want %f", result.Final.Cash, wantCash)
	}
}

func TestRun_EmptyWindow(t *testing.T) {
	sim, err := NewSimulator(fourDaySet(t), defaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewSimulator returned error: %v", err)
	}
	if _, err := sim.Run(context.Background(), nil, day(t, "2026-02-01"), day(t, "2026-02-10")); !errors.Is(err, ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
}

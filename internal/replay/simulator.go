// Package replay 实现账本重放的核心状态机。
//
// 模拟器按观测日历逐日推进：先记录当日估值快照，再应用当日到期的委托。
// 快照先于成交是刻意保留的约定——当日成交只会体现在下一个交易日的估值里，
// 颠倒顺序会让每个报告值整体偏移一个交易日的成交量。估值只使用不晚于当日
// 的收盘价，委托只在到达目标交易日后成交，因此不存在任何前视。
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"portfolio-replay/internal/ledger"
	"portfolio-replay/internal/market"
	"portfolio-replay/internal/schedule"
)

// ErrEmptyWindow 表示回放窗口内不存在任何观测交易日。
var ErrEmptyWindow = errors.New("replay: 回放窗口内没有观测交易日")

// ErrMissingInstrument 表示委托涉及的标的完全没有行情数据且配置要求中止。
var ErrMissingInstrument = errors.New("replay: 委托标的缺少行情数据")

// Options 控制一次回放的参数。
type Options struct {
	InitialCash    float64
	CommissionRate float64
	// AbortOnMissingData 为 true 时，标的缺少行情直接中止回放；
	// 否则跳过对应委托并记录警告。
	AbortOnMissingData bool
}

// Simulator 持有行情集合并驱动逐日回放。
// 一次 Run 内状态严格串行演进，模拟器是现金与持仓的唯一持有者。
type Simulator struct {
	prices *market.PriceSet
	opts   Options
	logger *zap.Logger
}

// NewSimulator 创建回放模拟器。
func NewSimulator(prices *market.PriceSet, opts Options, logger *zap.Logger) (*Simulator, error) {
	if prices == nil || prices.Len() == 0 {
		return nil, market.ErrNoPriceData
	}
	if opts.InitialCash <= 0 {
		return nil, fmt.Errorf("replay: 初始资金必须大于0，实际为 %v", opts.InitialCash)
	}
	if opts.CommissionRate < 0 || opts.CommissionRate >= 1 {
		return nil, fmt.Errorf("replay: 佣金率必须位于[0,1)，实际为 %v", opts.CommissionRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{prices: prices, opts: opts, logger: logger}, nil
}

type pendingFill struct {
	fill schedule.Fill
	// effective 为委托可以开始尝试成交的观测交易日：目标日本身是观测
	// 交易日时即目标日，否则是其后首个观测交易日；零值表示观测日历中
	// 不存在这样的日期，窗口结束时按未解决上报。
	effective time.Time
}

// Run 重放排期委托，返回逐日估值序列与执行回执。
func (s *Simulator) Run(ctx context.Context, fills []schedule.Fill, start, end time.Time) (Result, error) {
	fullCal := s.prices.Calendar()
	days := fullCal.Clip(start, end)
	if len(days) == 0 {
		return Result{}, ErrEmptyWindow
	}

	result := Result{
		InstrumentValues: make(map[string][]Point),
	}

	pending, err := s.preparePending(fills, fullCal, &result)
	if err != nil {
		return Result{}, err
	}

	state := NewState(s.opts.InitialCash)
	lastClose := make(map[string]float64)
	instruments := s.prices.Instruments()

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// 结转当日收盘价；停牌标的沿用最近一次收盘。
		for _, name := range instruments {
			series, _ := s.prices.Series(name)
			if bar, ok := series.BarOn(day); ok {
				lastClose[name] = bar.Close
			}
		}

		// 快照先于成交：当日委托的影响从下一个交易日起才计入估值。
		total := state.Cash
		for _, name := range state.Instruments() {
			total += state.Positions[name].Size * lastClose[name]
		}
		result.Valuation = append(result.Valuation, Point{Date: day, Value: total})
		for _, name := range instruments {
			value := state.Positions[name].Size * lastClose[name]
			result.InstrumentValues[name] = append(result.InstrumentValues[name], Point{Date: day, Value: value})
		}

		// 应用当日到期的委托：目标日为观测交易日的按期成交，目标日缺失
		// 的顺延到其后首个观测交易日；每笔委托至多成交一次。
		remaining := pending[:0]
		for _, p := range pending {
			if p.effective.IsZero() || day.Before(p.effective) {
				remaining = append(remaining, p)
				continue
			}

			series, _ := s.prices.Series(p.fill.Instrument)
			bar, ok := series.BarOn(day)
			if !ok {
				// 标的当日停牌，等待其下一根日线。
				remaining = append(remaining, p)
				continue
			}

			report := s.execute(&state, p.fill, day, bar.Open)
			s.record(&result, report)
		}
		pending = remaining
	}

	for _, p := range pending {
		result.Unresolved = append(result.Unresolved, p.fill)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"委托未解决: %s %s x %.2f，目标日 %s 之后窗口内没有可成交的交易日",
			p.fill.Side, p.fill.Instrument, p.fill.Quantity, p.fill.TargetDate.Format("2006-01-02"),
		))
	}

	s.logger.Info("回放完成",
		zap.Int("trading_days", len(days)),
		zap.Int("executed", result.Executed),
		zap.Int("capped", result.Capped),
		zap.Int("skipped", result.Skipped),
		zap.Int("unresolved", len(result.Unresolved)),
		zap.Float64("final_cash", state.Cash),
		zap.Float64("commission_paid", result.CommissionPaid),
	)

	result.Final = state
	return result, nil
}

// preparePending 预处理委托：剔除（或因配置中止于）完全没有行情的标的，
// 并为其余委托解析实际可成交日。
func (s *Simulator) preparePending(fills []schedule.Fill, cal market.Calendar, result *Result) ([]pendingFill, error) {
	pending := make([]pendingFill, 0, len(fills))
	for _, fill := range fills {
		if _, ok := s.prices.Series(fill.Instrument); !ok {
			if s.opts.AbortOnMissingData {
				return nil, fmt.Errorf("%w: %s", ErrMissingInstrument, fill.Instrument)
			}
			report := FillReport{
				Fill:   fill,
				Status: StatusSkipped,
				Note:   "标的缺少行情数据，委托跳过",
			}
			s.record(result, report)
			result.Warnings = append(result.Warnings, fmt.Sprintf("标的 %s 缺少行情数据，委托跳过", fill.Instrument))
			continue
		}

		effective := fill.TargetDate
		if !cal.Contains(effective) {
			next, ok := cal.NextAfter(effective)
			if !ok {
				effective = time.Time{}
			} else {
				effective = next
			}
		}
		pending = append(pending, pendingFill{fill: fill, effective: effective})
	}
	return pending, nil
}

// execute 以开盘价撮合单笔委托并更新状态。
func (s *Simulator) execute(state *State, fill schedule.Fill, day time.Time, open float64) FillReport {
	report := FillReport{
		Fill:         fill,
		ExecutedDate: day,
		Price:        open,
	}
	if !day.Equal(fill.TargetDate) {
		report.Note = fmt.Sprintf("目标日 %s 无行情，顺延成交", fill.TargetDate.Format("2006-01-02"))
	}

	switch fill.Side {
	case ledger.SideBuy:
		cost := fill.Quantity * open
		report.Commission = cost * s.opts.CommissionRate
		state.Cash -= cost + report.Commission
		state.addBuy(fill.Instrument, fill.Quantity, open)
		report.Status = StatusFilled
		report.ExecutedQty = fill.Quantity
		s.logger.Debug("买入成交",
			zap.String("instrument", fill.Instrument),
			zap.Time("date", day),
			zap.Float64("quantity", fill.Quantity),
			zap.Float64("price", open),
		)

	default: // Sell
		held := state.Position(fill.Instrument).Size
		if held <= 0 {
			report.Status = StatusSkipped
			report.Note = "无持仓，无法卖出"
			s.logger.Warn("卖出跳过：无持仓",
				zap.String("instrument", fill.Instrument),
				zap.Time("date", day),
			)
			return report
		}

		quantity := fill.Quantity
		if quantity > held {
			quantity = held
			report.Status = StatusCapped
			report.Note = fmt.Sprintf("持仓 %.2f 不足，卖出数量截断", held)
			s.logger.Warn("卖出数量截断为持仓规模",
				zap.String("instrument", fill.Instrument),
				zap.Float64("requested", fill.Quantity),
				zap.Float64("held", held),
			)
		} else {
			report.Status = StatusFilled
		}

		proceeds := quantity * open
		report.Commission = proceeds * s.opts.CommissionRate
		state.Cash += proceeds - report.Commission
		state.reduceSell(fill.Instrument, quantity)
		report.ExecutedQty = quantity
		s.logger.Debug("卖出成交",
			zap.String("instrument", fill.Instrument),
			zap.Time("date", day),
			zap.Float64("quantity", quantity),
			zap.Float64("price", open),
		)
	}

	return report
}

// record 累计回执与统计口径。
func (s *Simulator) record(result *Result, report FillReport) {
	result.Reports = append(result.Reports, report)
	result.CommissionPaid += report.Commission
	switch report.Status {
	case StatusFilled:
		result.Executed++
	case StatusCapped:
		result.Capped++
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"标的 %s 卖出 %.2f 超出持仓，截断为 %.2f",
			report.Fill.Instrument, report.Fill.Quantity, report.ExecutedQty,
		))
	case StatusSkipped:
		result.Skipped++
	}
}

// Package diagnose 在回放前校验行情数据对排期日期的覆盖情况。
//
// 模拟器按开盘价成交并用收盘价估值，因此最后一个执行日期之后至少还需要
// 一个观测交易日；覆盖不足时这里提前给出结构化的原因分类与建议重试日期，
// 避免回放中途才暴露数据缺口。
package diagnose

import (
	"fmt"
	"time"

	"portfolio-replay/internal/calendar"
	"portfolio-replay/internal/market"
)

// Cause 标识数据缺口的成因分类。
type Cause string

const (
	// CauseExecutionPending 最后的执行日期还在未来，数据尚不可能存在。
	CauseExecutionPending Cause = "execution_pending"
	// CauseAwaitingSettlement 执行日期就是今天，当日行情尚未结算。
	CauseAwaitingSettlement Cause = "awaiting_settlement"
	// CauseProviderLag 执行日期是昨天，大概率是数据源延迟。
	CauseProviderLag Cause = "provider_lag"
	// CauseNonTradingDay 执行日期落在周末。
	CauseNonTradingDay Cause = "non_trading_day"
	// CauseHolidayClosure 执行日期是工作日却没有行情，疑似节假日或停牌。
	CauseHolidayClosure Cause = "holiday_closure"
	// CauseInsufficientTrailing 执行日期之后没有任何观测交易日。
	CauseInsufficientTrailing Cause = "insufficient_trailing"
)

// GapError 描述一次数据覆盖缺口：成因、涉及日期与建议的重试时间。
type GapError struct {
	Cause         Cause
	LastExecution time.Time
	RetryAfter    time.Time
	Hint          string
}

func (e *GapError) Error() string {
	msg := fmt.Sprintf("diagnose: 数据覆盖不足 (%s)，最后执行日期 %s",
		e.Cause, e.LastExecution.Format("2006-01-02"))
	if !e.RetryAfter.IsZero() {
		msg += fmt.Sprintf("，建议 %s 之后重试", e.RetryAfter.Format("2006-01-02"))
	}
	if e.Hint != "" {
		msg += "：" + e.Hint
	}
	return msg
}

// Check 按顺序执行覆盖检查，全部通过返回 nil，否则返回 *GapError。
// now 为调用方视角的当前时间，便于测试注入。
func Check(cal market.Calendar, lastExecution time.Time, now time.Time) error {
	lastExecution = market.Day(lastExecution)
	today := market.Day(now)

	// 检查1：执行日期在今天之后，行情不可能已经存在。
	if lastExecution.After(today) {
		return &GapError{
			Cause:         CauseExecutionPending,
			LastExecution: lastExecution,
			RetryAfter:    lastExecution,
			Hint:          "执行日期尚未到来",
		}
	}

	// 检查2：执行日期不在观测日历中，按与今天的间隔分类成因。
	if !cal.Contains(lastExecution) {
		elapsed := int(today.Sub(lastExecution).Hours() / 24)
		hint := ""
		if next, ok := cal.NextOnOrAfter(lastExecution); ok {
			hint = fmt.Sprintf("观测日历中最近的后续交易日为 %s", next.Format("2006-01-02"))
		}

		switch {
		case elapsed == 0:
			return &GapError{
				Cause:         CauseAwaitingSettlement,
				LastExecution: lastExecution,
				RetryAfter:    lastExecution.AddDate(0, 0, 1),
				Hint:          "当日行情尚未结算，请收盘后重试",
			}
		case elapsed == 1:
			return &GapError{
				Cause:         CauseProviderLag,
				LastExecution: lastExecution,
				RetryAfter:    today.AddDate(0, 0, 1),
				Hint:          "疑似数据源延迟，请明天重试",
			}
		case lastExecution.Weekday() == time.Saturday || lastExecution.Weekday() == time.Sunday:
			return &GapError{
				Cause:         CauseNonTradingDay,
				LastExecution: lastExecution,
				RetryAfter:    calendar.AdjustWeekend(lastExecution),
				Hint:          hint,
			}
		default:
			return &GapError{
				Cause:         CauseHolidayClosure,
				LastExecution: lastExecution,
				RetryAfter:    lastExecution.AddDate(0, 0, 1),
				Hint:          hint,
			}
		}
	}

	// 检查3：执行日期就是最后一个观测交易日，缺少实现开盘成交与
	// 之后收盘估值所需的后续交易日。
	if last, ok := cal.Last(); ok && last.Equal(lastExecution) {
		return &GapError{
			Cause:         CauseInsufficientTrailing,
			LastExecution: lastExecution,
			RetryAfter:    calendar.DefaultExecutionDate(lastExecution),
			Hint:          "执行日期之后至少需要一个观测交易日",
		}
	}

	return nil
}

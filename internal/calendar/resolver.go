// Package calendar 负责把名义日历日期对齐到实际交易日。
//
// 两种模式：纯日历调整只处理周末，不依赖任何行情数据，用于在拿到行情之前
// 从决策日期推导默认执行日期；数据感知模式基于观测日历（实际存在行情的
// 日期集合）做解析，能够正确跳过节假日与停牌日。
package calendar

import (
	"errors"
	"fmt"
	"time"

	"portfolio-replay/internal/market"
)

// ErrNoFutureData 表示观测日历中不存在不早于目标日期的交易日。
var ErrNoFutureData = errors.New("calendar: 观测日历中没有更晚的交易日")

// AdjustWeekend 纯日历调整：周六顺延2天、周日顺延1天，工作日原样返回。
func AdjustWeekend(d time.Time) time.Time {
	d = market.Day(d)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, 2)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// DefaultExecutionDate 从决策日期推导默认执行日期：次日，周末顺延到周一。
func DefaultExecutionDate(decision time.Time) time.Time {
	return AdjustWeekend(market.Day(decision).AddDate(0, 0, 1))
}

// Resolve 数据感知解析：返回观测日历中首个不早于 d 的交易日。
func Resolve(cal market.Calendar, d time.Time) (time.Time, error) {
	resolved, ok := cal.NextOnOrAfter(d)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: 目标日期 %s", ErrNoFutureData, market.Day(d).Format("2006-01-02"))
	}
	return resolved, nil
}

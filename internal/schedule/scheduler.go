// Package schedule 把账本事件转换为按交易日排期的待执行委托。
package schedule

import (
	"sort"
	"time"

	"portfolio-replay/internal/ledger"
	"portfolio-replay/internal/market"
)

// Fill 是一条待执行委托：目标成交日等于事件的执行日期，按开盘价成交。
// 开盘价成交要求委托在目标交易日开盘前已经挂入，因此挂单日取观测日历中
// 严格早于目标日的最后一个交易日；若目标日之前没有观测交易日，挂单日为
// 零值，语义为"在窗口首个交易日开盘前挂入"。
type Fill struct {
	Instrument    string
	Side          ledger.Side
	Quantity      float64
	AssetClass    string
	TargetDate    time.Time
	PlacementDate time.Time
	// EventID 指回产生该委托的账本事件。
	EventID int64
}

// Build 将账本事件按执行日期排期。
// 事件必须已按账本顺序（决策日期、写入顺序）给出；同一挂单日的委托保持
// 原始写入顺序，这是唯一的同日排序规则。
func Build(events []ledger.OrderEvent, cal market.Calendar) []Fill {
	fills := make([]Fill, 0, len(events))
	for _, ev := range events {
		target := market.Day(ev.ExecutionDate)
		placement, _ := cal.LastBefore(target)
		fills = append(fills, Fill{
			Instrument:    ev.Instrument,
			Side:          ev.Side,
			Quantity:      ev.Quantity,
			AssetClass:    ev.AssetClass,
			TargetDate:    target,
			PlacementDate: placement,
			EventID:       ev.ID,
		})
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].TargetDate.Before(fills[j].TargetDate)
	})
	return fills
}

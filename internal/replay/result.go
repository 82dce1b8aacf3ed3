package replay

import (
	"time"

	"portfolio-replay/internal/schedule"
)

// FillStatus 表示单笔委托的执行结局。
type FillStatus string

const (
	// StatusFilled 足额成交。
	StatusFilled FillStatus = "filled"
	// StatusCapped 卖出数量超过持仓，被截断为持仓规模后成交。
	StatusCapped FillStatus = "capped"
	// StatusSkipped 因缺少行情等原因被跳过，未产生任何状态变更。
	StatusSkipped FillStatus = "skipped"
)

// FillReport 是单笔委托的执行回执，作为返回值暴露而非回调。
type FillReport struct {
	Fill         schedule.Fill
	Status       FillStatus
	ExecutedDate time.Time
	ExecutedQty  float64
	Price        float64
	Commission   float64
	Note         string
}

// Point 是估值序列中的一个采样点。
type Point struct {
	Date  time.Time
	Value float64
}

// Result 汇总一次回放的全部产出。
type Result struct {
	// Valuation 为逐交易日的账户总值（现金+持仓市值）序列。
	Valuation []Point
	// InstrumentValues 为每个标的的逐日持仓市值序列，与 Valuation 对齐。
	InstrumentValues map[string][]Point
	// Final 为窗口末的组合状态。
	Final State
	// Reports 按执行顺序记录每笔委托的回执。
	Reports []FillReport
	// Unresolved 为窗口结束时仍未找到可成交交易日的委托，只警告不丢弃。
	Unresolved []schedule.Fill
	// CommissionPaid 为全部成交佣金之和，与每笔回执的 Commission 严格对账。
	CommissionPaid float64
	Executed       int
	Capped         int
	Skipped        int
	Warnings       []string
}

package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Side 表示委托方向。
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide 将外部输入的方向标记规范化为 Side。
// Hold 被视为有效输入但不产生账本事件，由调用方过滤。
func ParseSide(token string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "buy", "b", "买入":
		return SideBuy, nil
	case "sell", "s", "卖出":
		return SideSell, nil
	default:
		return "", &ValidationError{Field: "side", Reason: fmt.Sprintf("无法识别的方向标记 %q", token)}
	}
}

// OrderEvent 是账本中的一条不可变订单事件。
type OrderEvent struct {
	ID            int64
	Portfolio     string
	DecisionDate  time.Time
	ExecutionDate time.Time
	Instrument    string
	Side          Side
	Quantity      float64
	AssetClass    string
	// Seq 为同一决策批次内的写入顺序，回放时用作唯一的同日排序依据。
	Seq int
}

// Instruction 是决策批次中的一行待写入指令。
type Instruction struct {
	Instrument string
	Side       Side
	Quantity   float64
	AssetClass string
}

// Validate 在写入账本前拒绝非法指令。
func (i Instruction) Validate() error {
	if strings.TrimSpace(i.Instrument) == "" {
		return &ValidationError{Field: "instrument", Reason: "标的代码不能为空"}
	}
	if i.Side != SideBuy && i.Side != SideSell {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("无法识别的方向 %q", string(i.Side))}
	}
	if i.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("数量必须大于0，实际为 %v", i.Quantity)}
	}
	return nil
}

// Summary 描述单个组合的账本概况。
type Summary struct {
	Portfolio      string
	TotalEvents    int
	FirstDecision  time.Time
	LastDecision   time.Time
	FirstExecution time.Time
	LastExecution  time.Time
	Instruments    []string
	DecisionDates  []time.Time
}

// ErrDuplicateBatch 表示该组合在同一决策日已写入过批次，本次追加整体拒绝。
var ErrDuplicateBatch = errors.New("ledger: 同一决策日的订单批次已存在")

// ErrEmptyLedger 表示组合没有任何历史订单。
var ErrEmptyLedger = errors.New("ledger: 组合没有历史订单")

// ValidationError 表示指令在写入前未通过校验。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: 指令校验失败 (%s): %s", e.Field, e.Reason)
}

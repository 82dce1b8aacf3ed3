package replay

import "sort"

// Position 表示单个标的的持仓规模与平均成本。
type Position struct {
	Size    float64
	AvgCost float64
}

// State 是组合的瞬时状态：现金余额加标的到持仓的映射。
// 它只在一次回放内部按值传递演进，永远不持久化——账本才是唯一事实来源，
// 每次回放都从零重建。
type State struct {
	Cash      float64
	Positions map[string]Position
}

// NewState 以初始资金创建空仓状态。
func NewState(cash float64) State {
	return State{
		Cash:      cash,
		Positions: make(map[string]Position),
	}
}

// Position 返回标的的当前持仓，未持有时为零值。
func (s State) Position(instrument string) Position {
	return s.Positions[instrument]
}

// Instruments 返回当前持仓的标的，按字典序。
func (s State) Instruments() []string {
	names := make([]string, 0, len(s.Positions))
	for name := range s.Positions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// addBuy 按买入数量与成交价更新持仓并重算平均成本。
func (s *State) addBuy(instrument string, quantity, price float64) {
	pos := s.Positions[instrument]
	total := pos.Size + quantity
	if total > 0 {
		pos.AvgCost = (pos.Size*pos.AvgCost + quantity*price) / total
	}
	pos.Size = total
	s.Positions[instrument] = pos
}

// reduceSell 减少持仓；调用方保证数量不超过当前持仓。
func (s *State) reduceSell(instrument string, quantity float64) {
	pos := s.Positions[instrument]
	pos.Size -= quantity
	if pos.Size <= 0 {
		delete(s.Positions, instrument)
		return
	}
	s.Positions[instrument] = pos
}

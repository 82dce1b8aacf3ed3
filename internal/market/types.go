package market

import (
	"sort"
	"time"
)

// PriceBar 代表单个标的某个交易日的日线。
type PriceBar struct {
	Instrument string
	Date       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// Day 将时间归一化为 UTC 零点，所有交易日比较都基于该表示。
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay 判断两个时间是否落在同一个交易日。
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// Series 是单个标的按日期升序排列的日线序列，同一日期至多一根。
type Series struct {
	Instrument string
	Bars       []PriceBar
}

// NewSeries 构建日线序列：归一化日期、去重并按日期排序。
func NewSeries(instrument string, bars []PriceBar) Series {
	seen := make(map[time.Time]int, len(bars))
	out := make([]PriceBar, 0, len(bars))
	for _, bar := range bars {
		bar.Instrument = instrument
		bar.Date = Day(bar.Date)
		if idx, ok := seen[bar.Date]; ok {
			out[idx] = bar
			continue
		}
		seen[bar.Date] = len(out)
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return Series{Instrument: instrument, Bars: out}
}

// BarOn 返回指定交易日的日线。
func (s Series) BarOn(d time.Time) (PriceBar, bool) {
	d = Day(d)
	idx := sort.Search(len(s.Bars), func(i int) bool { return !s.Bars[i].Date.Before(d) })
	if idx < len(s.Bars) && s.Bars[idx].Date.Equal(d) {
		return s.Bars[idx], true
	}
	return PriceBar{}, false
}

// LastBarOnOrBefore 返回不晚于指定日期的最近一根日线，用于停牌日的收盘价结转。
func (s Series) LastBarOnOrBefore(d time.Time) (PriceBar, bool) {
	d = Day(d)
	idx := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Date.After(d) })
	if idx == 0 {
		return PriceBar{}, false
	}
	return s.Bars[idx-1], true
}

// Calendar 是按升序排列、去重后的观测交易日集合。
// 它来自实际存在行情的日期，与纯工作日历因节假日/停牌而不同。
type Calendar []time.Time

// NewCalendar 从任意日期集合构建观测日历。
func NewCalendar(dates []time.Time) Calendar {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make(Calendar, 0, len(dates))
	for _, d := range dates {
		d = Day(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Contains 判断日期是否为观测交易日。
func (c Calendar) Contains(d time.Time) bool {
	d = Day(d)
	idx := sort.Search(len(c), func(i int) bool { return !c[i].Before(d) })
	return idx < len(c) && c[idx].Equal(d)
}

// NextOnOrAfter 返回首个不早于 d 的观测交易日。
func (c Calendar) NextOnOrAfter(d time.Time) (time.Time, bool) {
	d = Day(d)
	idx := sort.Search(len(c), func(i int) bool { return !c[i].Before(d) })
	if idx < len(c) {
		return c[idx], true
	}
	return time.Time{}, false
}

// NextAfter 返回首个严格晚于 d 的观测交易日。
func (c Calendar) NextAfter(d time.Time) (time.Time, bool) {
	d = Day(d)
	idx := sort.Search(len(c), func(i int) bool { return c[i].After(d) })
	if idx < len(c) {
		return c[idx], true
	}
	return time.Time{}, false
}

// LastBefore 返回最后一个严格早于 d 的观测交易日。
func (c Calendar) LastBefore(d time.Time) (time.Time, bool) {
	d = Day(d)
	idx := sort.Search(len(c), func(i int) bool { return !c[i].Before(d) })
	if idx == 0 {
		return time.Time{}, false
	}
	return c[idx-1], true
}

// Clip 返回位于 [start, end] 闭区间内的观测交易日。
func (c Calendar) Clip(start, end time.Time) Calendar {
	start, end = Day(start), Day(end)
	out := make(Calendar, 0, len(c))
	for _, d := range c {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Last 返回日历中最后一个观测交易日。
func (c Calendar) Last() (time.Time, bool) {
	if len(c) == 0 {
		return time.Time{}, false
	}
	return c[len(c)-1], true
}

// PriceSet 聚合多个标的的日线序列。
type PriceSet struct {
	series map[string]Series
}

// NewPriceSet 创建空的行情集合。
func NewPriceSet() *PriceSet {
	return &PriceSet{series: make(map[string]Series)}
}

// Add 加入（或替换）一个标的的日线序列。
func (p *PriceSet) Add(s Series) {
	p.series[s.Instrument] = s
}

// Series 返回指定标的的日线序列。
func (p *PriceSet) Series(instrument string) (Series, bool) {
	s, ok := p.series[instrument]
	return s, ok
}

// Instruments 返回集合内全部标的，按字典序。
func (p *PriceSet) Instruments() []string {
	names := make([]string, 0, len(p.series))
	for name := range p.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calendar 返回全部标的交易日期的并集，即观测日历。
func (p *PriceSet) Calendar() Calendar {
	var dates []time.Time
	for _, s := range p.series {
		for _, bar := range s.Bars {
			dates = append(dates, bar.Date)
		}
	}
	return NewCalendar(dates)
}

// Len 返回集合内标的数量。
func (p *PriceSet) Len() int {
	return len(p.series)
}

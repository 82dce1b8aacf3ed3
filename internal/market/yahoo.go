package market

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"go.uber.org/zap"
)

// YahooFeed 基于 Yahoo Finance 拉取股票/ETF 日线。
// 标的代码允许携带市场后缀（如 2800.HK），原样透传给数据源。
type YahooFeed struct {
	logger *zap.Logger
}

// NewYahooFeed 创建 Yahoo 日线数据源。
func NewYahooFeed(logger *zap.Logger) *YahooFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooFeed{logger: logger}
}

// Fetch 拉取 [start, end] 范围内的日线。
func (f *YahooFeed) Fetch(ctx context.Context, instrument string, start, end time.Time) ([]PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startDay := Day(start)
	// Yahoo 的 end 为开区间，多取一天保证末日包含在内。
	endDay := Day(end).AddDate(0, 0, 1)

	params := &chart.Params{
		Symbol:   instrument,
		Start:    datetime.New(&startDay),
		End:      datetime.New(&endDay),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)

	var bars []PriceBar
	for iter.Next() {
		bar := iter.Bar()
		if bar == nil {
			continue
		}
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePrice, _ := bar.Close.Float64()
		bars = append(bars, PriceBar{
			Instrument: instrument,
			Date:       Day(time.Unix(int64(bar.Timestamp), 0)),
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
			Volume:     float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("market: 拉取 %s 日线失败: %w", instrument, err)
	}

	f.logger.Debug("Yahoo 日线拉取完成",
		zap.String("instrument", instrument),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

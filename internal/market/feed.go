package market

import (
	"context"
	"errors"
	"time"
)

// Feed 抽象日线行情来源，按标的与日期范围拉取。
// 返回的序列按日期升序；范围内没有任何数据时返回空序列而非错误。
type Feed interface {
	Fetch(ctx context.Context, instrument string, start, end time.Time) ([]PriceBar, error)
}

// ErrNoPriceData 表示拉取结果为空，所有标的均无可用行情。
var ErrNoPriceData = errors.New("market: 未获取到任何行情数据")

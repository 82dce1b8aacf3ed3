package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request 描述一次行情拉取需求。
type Request struct {
	Instrument string
	AssetClass string
}

// Service 按资产类型分发数据源，并发拉取全部标的的日线。
type Service struct {
	stock  Feed
	crypto Feed
	logger *zap.Logger
}

// NewService 创建行情服务。
func NewService(stock, crypto Feed, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		stock:  stock,
		crypto: crypto,
		logger: logger,
	}
}

// FetchAll 并发拉取全部标的的日线并聚合为 PriceSet。
// 单个标的失败只降级为警告（该标的被排除）；全部失败返回 ErrNoPriceData。
// 返回时所有结果已完全落位，后续的日历对齐与诊断可以安全使用并集日历。
func (s *Service) FetchAll(ctx context.Context, requests []Request, start, end time.Time) (*PriceSet, []string, error) {
	set := NewPriceSet()
	var warnings []string

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)

	for _, req := range requests {
		group.Go(func() error {
			feed := s.feedFor(req.AssetClass)
			bars, err := feed.Fetch(groupCtx, req.Instrument, start, end)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				warnings = append(warnings, fmt.Sprintf("标的 %s 行情拉取失败，已排除: %v", req.Instrument, err))
				s.logger.Warn("行情拉取失败，标的被排除",
					zap.String("instrument", req.Instrument),
					zap.Error(err),
				)
				return nil
			}
			if len(bars) == 0 {
				warnings = append(warnings, fmt.Sprintf("标的 %s 在请求范围内没有行情数据，已排除", req.Instrument))
				s.logger.Warn("行情数据为空，标的被排除",
					zap.String("instrument", req.Instrument),
				)
				return nil
			}

			set.Add(NewSeries(req.Instrument, bars))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	if set.Len() == 0 {
		return nil, warnings, ErrNoPriceData
	}

	s.logger.Info("行情拉取完成",
		zap.Int("requested", len(requests)),
		zap.Int("fetched", set.Len()),
		zap.Time("start", Day(start)),
		zap.Time("end", Day(end)),
	)
	return set, warnings, nil
}

func (s *Service) feedFor(assetClass string) Feed {
	if strings.EqualFold(strings.TrimSpace(assetClass), "crypto") && s.crypto != nil {
		return s.crypto
	}
	return s.stock
}

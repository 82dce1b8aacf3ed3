package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"portfolio-replay/internal/config"
)

// CryptoFeed 基于 ccxt 现货接口拉取加密资产日线，供 asset_class 为 Crypto 的事件使用。
type CryptoFeed struct {
	cfg      config.FeedConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewCryptoFeed 构造 Binance 现货日线数据源。
func NewCryptoFeed(cfg config.FeedConfig, logger *zap.Logger) (*CryptoFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}

	ex := ccxt.NewBinance(userConfig)

	return &CryptoFeed{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// Fetch 拉取 [start, end] 范围内的日线。
func (f *CryptoFeed) Fetch(ctx context.Context, instrument string, start, end time.Time) ([]PriceBar, error) {
	since := Day(start).UnixMilli()
	limit := int64(Day(end).Sub(Day(start)).Hours()/24) + 2

	var raw []ccxt.OHLCV
	err := f.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", instrument), func() error {
		if err := f.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := f.exchange.FetchOHLCV(
			instrument,
			ccxt.WithFetchOHLCVTimeframe("1d"),
			ccxt.WithFetchOHLCVSince(since),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("market: 拉取 %s 日线失败: %w", instrument, err)
	}

	endDay := Day(end)
	bars := make([]PriceBar, 0, len(raw))
	for _, item := range raw {
		day := Day(time.UnixMilli(item.Timestamp))
		if day.After(endDay) {
			continue
		}
		bars = append(bars, PriceBar{
			Instrument: instrument,
			Date:       day,
			Open:       item.Open,
			High:       item.High,
			Low:        item.Low,
			Close:      item.Close,
			Volume:     item.Volume,
		})
	}

	f.logger.Debug("加密资产日线拉取完成",
		zap.String("instrument", instrument),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

func (f *CryptoFeed) ensureMarketsLoaded(ctx context.Context) error {
	if f.marketsLoaded {
		return nil
	}

	f.marketsMu.Lock()
	defer f.marketsMu.Unlock()

	if f.marketsLoaded {
		return nil
	}

	loadErr := f.callWithRetry(ctx, "load_markets", func() error {
		_, err := f.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	f.marketsLoaded = true
	f.logger.Info("已完成市场元数据加载")
	return nil
}

func (f *CryptoFeed) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := f.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := f.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				f.logger.Info("行情调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !isRetryable(err) || attempt >= f.cfg.Retry.MaxAttempts {
			f.logger.Error("行情调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		f.logger.Warn("行情调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

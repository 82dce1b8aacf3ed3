package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"portfolio-replay/internal/diagnose"
	"portfolio-replay/internal/ledger"
	"portfolio-replay/internal/market"
	"portfolio-replay/internal/replay"
	"portfolio-replay/internal/report"
	"portfolio-replay/internal/schedule"
)

// Replay 是唯一的回放入口：新增批次后的增量运行与查看既有组合走同一条路径，
// 只取决于传入的账本切片与行情窗口。
func (a *App) Replay(ctx context.Context, portfolio string) error {
	events, err := a.repo.ListEvents(ctx, portfolio)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrEmptyLedger, portfolio)
	}

	summary, err := a.repo.Summarize(ctx, portfolio)
	if err != nil {
		return err
	}

	a.logger.Info("账本加载完成",
		zap.String("portfolio", portfolio),
		zap.Int("events", summary.TotalEvents),
		zap.Int("instruments", len(summary.Instruments)),
		zap.Int("batches", len(summary.DecisionDates)),
	)

	now := time.Now()
	window := deriveWindow(summary, now, a.cfg.Feed.LookbackDays, a.cfg.Feed.TrailingDays)

	prices, warnings, err := a.feeds.FetchAll(ctx, fetchRequests(events), window.dataStart, window.end)
	if err != nil {
		return err
	}

	if err := diagnose.Check(prices.Calendar(), summary.LastExecution, now); err != nil {
		var gap *diagnose.GapError
		if errors.As(err, &gap) {
			a.logger.Error("数据覆盖检查未通过",
				zap.String("cause", string(gap.Cause)),
				zap.Time("last_execution", gap.LastExecution),
				zap.Time("retry_after", gap.RetryAfter),
				zap.String("hint", gap.Hint),
			)
		}
		return err
	}

	fills := schedule.Build(events, prices.Calendar())

	sim, err := replay.NewSimulator(prices, replay.Options{
		InitialCash:        a.cfg.Portfolio.InitialCash,
		CommissionRate:     a.cfg.Portfolio.CommissionRate,
		AbortOnMissingData: a.cfg.Portfolio.AbortOnMissingData,
	}, a.logger)
	if err != nil {
		return err
	}

	result, err := sim.Run(ctx, fills, window.replayStart, window.end)
	if err != nil {
		return err
	}
	result.Warnings = append(warnings, result.Warnings...)

	return report.Render(os.Stdout, portfolio, result, prices, a.cfg.Portfolio.InitialCash)
}

type replayWindow struct {
	dataStart   time.Time
	replayStart time.Time
	end         time.Time
}

// deriveWindow 推导行情与回放窗口：行情从首个决策日前 lookback 天开始，
// 回放从首个执行日前一天开始（避免无意义的前置日期），结束日保证最后
// 执行日之后仍有足够的自然日覆盖 2-3 个交易日。
func deriveWindow(summary *ledger.Summary, now time.Time, lookbackDays, trailingDays int) replayWindow {
	today := market.Day(now)
	minEnd := market.Day(summary.LastDecision).AddDate(0, 0, trailingDays)
	end := today.AddDate(0, 0, 3)
	if minEnd.After(end) {
		end = minEnd
	}
	return replayWindow{
		dataStart:   market.Day(summary.FirstDecision).AddDate(0, 0, -lookbackDays),
		replayStart: market.Day(summary.FirstExecution).AddDate(0, 0, -1),
		end:         end,
	}
}

// fetchRequests 收集账本涉及的标的，按首次出现的资产类型去重。
func fetchRequests(events []ledger.OrderEvent) []market.Request {
	seen := make(map[string]struct{}, len(events))
	requests := make([]market.Request, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.Instrument]; ok {
			continue
		}
		seen[ev.Instrument] = struct{}{}
		requests = append(requests, market.Request{
			Instrument: ev.Instrument,
			AssetClass: ev.AssetClass,
		})
	}
	return requests
}

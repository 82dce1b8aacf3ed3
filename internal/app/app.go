package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"portfolio-replay/internal/calendar"
	"portfolio-replay/internal/config"
	"portfolio-replay/internal/ledger"
	"portfolio-replay/internal/market"
	"portfolio-replay/internal/orderfile"
	"portfolio-replay/internal/store"
)

// App 聚合核心依赖并暴露各操作模式的入口。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   *ledger.Repository
	feeds  *market.Service
}

// New 创建 App 实例并初始化账本仓储与行情服务。
func New(cfg *config.Config, logger *zap.Logger, sqliteStore *store.Store) (*App, error) {
	repo, err := ledger.NewRepository(sqliteStore.DB(), logger)
	if err != nil {
		return nil, fmt.Errorf("初始化账本仓储失败: %w", err)
	}

	cryptoFeed, err := market.NewCryptoFeed(cfg.Feed, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化加密行情源失败: %w", err)
	}

	feeds := market.NewService(market.NewYahooFeed(logger), cryptoFeed, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		feeds:  feeds,
	}, nil
}

// Append 解析订单文件并原子追加一个决策批次，随后立即重放组合。
// 批次已存在时沿用既有账本继续重放（幂等追加）。
func (a *App) Append(ctx context.Context, portfolio string, decisionDate time.Time, orderPath string) error {
	if portfolio == "" {
		return errors.New("组合名称不能为空")
	}

	file, err := os.Open(orderPath)
	if err != nil {
		return fmt.Errorf("打开订单文件失败: %w", err)
	}
	defer file.Close()

	instructions, err := orderfile.Parse(file)
	if err != nil {
		return err
	}

	executionDate := calendar.DefaultExecutionDate(decisionDate)
	appended, err := a.repo.AppendBatch(ctx, portfolio, market.Day(decisionDate), executionDate, instructions)
	switch {
	case errors.Is(err, ledger.ErrDuplicateBatch):
		a.logger.Warn("订单批次已存在，使用既有账本继续",
			zap.String("portfolio", portfolio),
			zap.Time("decision_date", market.Day(decisionDate)),
		)
	case err != nil:
		return err
	default:
		a.logger.Info("订单批次写入完成",
			zap.String("portfolio", portfolio),
			zap.Int("appended", appended),
			zap.Time("execution_date", executionDate),
		)
	}

	return a.Replay(ctx, portfolio)
}

// List 列出账本中的全部组合及其概况。
func (a *App) List(ctx context.Context) error {
	portfolios, err := a.repo.ListPortfolios(ctx)
	if err != nil {
		return err
	}
	if len(portfolios) == 0 {
		fmt.Println("暂无组合")
		return nil
	}

	for _, name := range portfolios {
		summary, err := a.repo.Summarize(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d 条订单，%d 个标的，%d 个决策批次，%s → %s\n",
			name,
			summary.TotalEvents,
			len(summary.Instruments),
			len(summary.DecisionDates),
			summary.FirstDecision.Format("2006-01-02"),
			summary.LastDecision.Format("2006-01-02"),
		)
	}
	return nil
}

// Clear 是账本的管理性批量删除：指定组合或（名称为空时）整个账本。
func (a *App) Clear(ctx context.Context, portfolio string) error {
	var (
		deleted int64
		err     error
	)
	if portfolio == "" {
		deleted, err = a.repo.ClearAll(ctx)
	} else {
		deleted, err = a.repo.Clear(ctx, portfolio)
	}
	if err != nil {
		return err
	}
	fmt.Printf("已删除 %d 条订单记录\n", deleted)
	return nil
}

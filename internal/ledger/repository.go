package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Repository 基于 SQLite 实现追加式订单账本。
// 账本是唯一的事实来源：持仓与估值永远由重放推导，从不落库。
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository 创建账本仓储并初始化表结构。
func NewRepository(db *sql.DB, logger *zap.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("ledger: 数据库实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	repo := &Repository{db: db, logger: logger}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio TEXT NOT NULL,
			decision_date TEXT NOT NULL,
			execution_date TEXT NOT NULL,
			instrument TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			asset_class TEXT NOT NULL DEFAULT 'Stock',
			insertion_order INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_portfolio ON order_events(portfolio, decision_date);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_order_events_batch_seq ON order_events(portfolio, decision_date, insertion_order);`,
	}

	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("ledger: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// AppendBatch 原子地追加一个决策批次。
// 同一 (portfolio, decision_date) 已存在时整批拒绝并返回 ErrDuplicateBatch，
// 账本保持不变；任一指令校验失败时同样不产生部分写入。
func (r *Repository) AppendBatch(ctx context.Context, portfolio string, decisionDate, executionDate time.Time, instructions []Instruction) (int, error) {
	if portfolio == "" {
		return 0, &ValidationError{Field: "portfolio", Reason: "组合名称不能为空"}
	}
	if executionDate.Before(decisionDate) {
		return 0, &ValidationError{Field: "execution_date", Reason: "执行日期不能早于决策日期"}
	}
	for _, ins := range instructions {
		if err := ins.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing int
	row := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM order_events WHERE portfolio = ? AND decision_date = ?`,
		portfolio, decisionDate.Format(dateLayout),
	)
	if scanErr := row.Scan(&existing); scanErr != nil {
		err = fmt.Errorf("ledger: 查询既有批次失败: %w", scanErr)
		return 0, err
	}
	if existing > 0 {
		_ = tx.Rollback()
		r.logger.Warn("订单批次已存在，整批跳过",
			zap.String("portfolio", portfolio),
			zap.String("decision_date", decisionDate.Format(dateLayout)),
		)
		return 0, ErrDuplicateBatch
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for seq, ins := range instructions {
		if _, execErr := tx.ExecContext(ctx,
			`INSERT INTO order_events (portfolio, decision_date, execution_date, instrument, side, quantity, asset_class, insertion_order, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			portfolio,
			decisionDate.Format(dateLayout),
			executionDate.Format(dateLayout),
			ins.Instrument,
			string(ins.Side),
			ins.Quantity,
			ins.AssetClass,
			seq,
			now,
		); execErr != nil {
			err = fmt.Errorf("ledger: 写入订单事件失败: %w", execErr)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: 提交批次失败: %w", err)
	}

	r.logger.Info("订单批次写入完成",
		zap.String("portfolio", portfolio),
		zap.String("decision_date", decisionDate.Format(dateLayout)),
		zap.Int("count", len(instructions)),
	)
	return len(instructions), nil
}

// ListEvents 返回组合的全部历史订单，按决策日期升序、同日按写入顺序。
func (r *Repository) ListEvents(ctx context.Context, portfolio string) ([]OrderEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, portfolio, decision_date, execution_date, instrument, side, quantity, asset_class, insertion_order
		 FROM order_events WHERE portfolio = ?
		 ORDER BY decision_date ASC, id ASC`,
		portfolio,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: 查询订单事件失败: %w", err)
	}
	defer rows.Close()

	var events []OrderEvent
	for rows.Next() {
		var (
			ev            OrderEvent
			side          string
			decisionText  string
			executionText string
		)
		if err := rows.Scan(&ev.ID, &ev.Portfolio, &decisionText, &executionText, &ev.Instrument, &side, &ev.Quantity, &ev.AssetClass, &ev.Seq); err != nil {
			return nil, fmt.Errorf("ledger: 读取订单事件失败: %w", err)
		}
		ev.Side = Side(side)
		if ev.DecisionDate, err = time.ParseInLocation(dateLayout, decisionText, time.UTC); err != nil {
			return nil, fmt.Errorf("ledger: 解析决策日期失败: %w", err)
		}
		if ev.ExecutionDate, err = time.ParseInLocation(dateLayout, executionText, time.UTC); err != nil {
			return nil, fmt.Errorf("ledger: 解析执行日期失败: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: 遍历订单事件失败: %w", err)
	}
	return events, nil
}

// ListPortfolios 返回账本中出现过的全部组合名称。
func (r *Repository) ListPortfolios(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT portfolio FROM order_events ORDER BY portfolio`,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: 查询组合列表失败: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ledger: 读取组合名称失败: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: 遍历组合列表失败: %w", err)
	}
	return names, nil
}

// Summarize 汇总组合账本概况；组合不存在时返回 ErrEmptyLedger。
func (r *Repository) Summarize(ctx context.Context, portfolio string) (*Summary, error) {
	events, err := r.ListEvents(ctx, portfolio)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrEmptyLedger
	}

	summary := &Summary{
		Portfolio:      portfolio,
		TotalEvents:    len(events),
		FirstDecision:  events[0].DecisionDate,
		LastDecision:   events[0].DecisionDate,
		FirstExecution: events[0].ExecutionDate,
		LastExecution:  events[0].ExecutionDate,
	}

	instruments := make(map[string]struct{})
	decisionDates := make(map[time.Time]struct{})
	for _, ev := range events {
		if ev.DecisionDate.Before(summary.FirstDecision) {
			summary.FirstDecision = ev.DecisionDate
		}
		if ev.DecisionDate.After(summary.LastDecision) {
			summary.LastDecision = ev.DecisionDate
		}
		if ev.ExecutionDate.Before(summary.FirstExecution) {
			summary.FirstExecution = ev.ExecutionDate
		}
		if ev.ExecutionDate.After(summary.LastExecution) {
			summary.LastExecution = ev.ExecutionDate
		}
		instruments[ev.Instrument] = struct{}{}
		decisionDates[ev.DecisionDate] = struct{}{}
	}

	for name := range instruments {
		summary.Instruments = append(summary.Instruments, name)
	}
	sort.Strings(summary.Instruments)

	for d := range decisionDates {
		summary.DecisionDates = append(summary.DecisionDates, d)
	}
	sort.Slice(summary.DecisionDates, func(i, j int) bool {
		return summary.DecisionDates[i].Before(summary.DecisionDates[j])
	})

	return summary, nil
}

// Clear 删除指定组合的全部订单事件，返回删除条数。
// 这是账本之外的管理操作，重放核心永远不会调用它。
func (r *Repository) Clear(ctx context.Context, portfolio string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM order_events WHERE portfolio = ?`, portfolio)
	if err != nil {
		return 0, fmt.Errorf("ledger: 清除组合订单失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: 统计删除条数失败: %w", err)
	}
	r.logger.Warn("组合订单已清除",
		zap.String("portfolio", portfolio),
		zap.Int64("deleted", affected),
	)
	return affected, nil
}

// ClearAll 删除账本中的全部订单事件。
func (r *Repository) ClearAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM order_events`)
	if err != nil {
		return 0, fmt.Errorf("ledger: 清空账本失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: 统计删除条数失败: %w", err)
	}
	r.logger.Warn("账本已清空", zap.Int64("deleted", affected))
	return affected, nil
}

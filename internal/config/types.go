package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回放引擎运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// PortfolioConfig 控制账户初始状态与成交成本。
type PortfolioConfig struct {
	InitialCash    float64 `mapstructure:"initial_cash"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	// AbortOnMissingData 为 true 时，缺少某只标的的行情会中止整次回放；
	// 为 false 时仅跳过对应委托并记录警告。
	AbortOnMissingData bool `mapstructure:"abort_on_missing_data"`
}

// FeedConfig 描述行情数据源。
type FeedConfig struct {
	CryptoExchange string      `mapstructure:"crypto_exchange"`
	LookbackDays   int         `mapstructure:"lookback_days"`
	TrailingDays   int         `mapstructure:"trailing_days"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DatabaseConfig 管理订单账本数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Portfolio.InitialCash <= 0 {
		err = multierr.Append(err, errors.New("portfolio.initial_cash 必须大于0"))
	}
	if c.Portfolio.CommissionRate < 0 || c.Portfolio.CommissionRate >= 1 {
		err = multierr.Append(err, errors.New("portfolio.commission_rate 必须位于[0,1)"))
	}
	if c.Feed.CryptoExchange == "" {
		err = multierr.Append(err, errors.New("feed.crypto_exchange 不能为空"))
	}
	if c.Feed.LookbackDays <= 0 {
		err = multierr.Append(err, errors.New("feed.lookback_days 必须大于0"))
	}
	if c.Feed.TrailingDays <= 0 {
		err = multierr.Append(err, errors.New("feed.trailing_days 必须大于0"))
	}
	if c.Feed.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.max_attempts 必须大于0"))
	}
	if c.Feed.Retry.MinDelay <= 0 || c.Feed.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.delay 必须为正"))
	}
	if c.Feed.Retry.MinDelay > c.Feed.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("feed.retry.min_delay 不能大于 max_delay"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

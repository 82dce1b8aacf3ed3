package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"portfolio-replay/internal/app"
	"portfolio-replay/internal/config"
	"portfolio-replay/internal/log"
	"portfolio-replay/internal/store"
)

func main() {
	var (
		configPath string
		mode       string
		portfolio  string
		dateText   string
		orderPath  string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&mode, "mode", "replay", "操作模式: replay | append | list | clear")
	flag.StringVar(&portfolio, "portfolio", "", "组合名称")
	flag.StringVar(&dateText, "date", "", "决策日期 (格式: YYYYMMDD)，append 模式必填")
	flag.StringVar(&orderPath, "file", "", "订单 CSV 文件路径，append 模式必填")
	flag.Parse()

	// .env 缺失不视为错误。
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	replayApp, err := app.New(cfg, logger, sqliteStore)
	if err != nil {
		logger.Error("初始化应用失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, replayApp, mode, portfolio, dateText, orderPath); err != nil {
		logger.Error("运行失败", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, replayApp *app.App, mode, portfolio, dateText, orderPath string) error {
	switch mode {
	case "replay":
		if portfolio == "" {
			return fmt.Errorf("replay 模式需要指定 -portfolio")
		}
		return replayApp.Replay(ctx, portfolio)
	case "append":
		if portfolio == "" || dateText == "" || orderPath == "" {
			return fmt.Errorf("append 模式需要指定 -portfolio、-date 与 -file")
		}
		decisionDate, err := time.ParseInLocation("20060102", dateText, time.UTC)
		if err != nil {
			return fmt.Errorf("决策日期格式错误，应为 YYYYMMDD: %w", err)
		}
		return replayApp.Append(ctx, portfolio, decisionDate, orderPath)
	case "list":
		return replayApp.List(ctx)
	case "clear":
		return replayApp.Clear(ctx, portfolio)
	default:
		return fmt.Errorf("无效的操作模式 %q", mode)
	}
}

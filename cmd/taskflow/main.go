// =============================================================================
// TaskFlow 主入口
// =============================================================================
// 可恢复任务执行协议的 worker 与控制 CLI
//
// 使用方法:
//
//	taskflow serve                        # 启动 worker 与 API
//	taskflow serve --config config.yaml   # 指定配置文件
//	taskflow run --order order.json       # 启动一条订单履行流水线
//	taskflow approve <instance-id>        # 审批通过
//	taskflow reject <instance-id> -m "…"  # 审批驳回并附反馈
//	taskflow inspect instances            # 查看归档实例
//	taskflow inspect liveness <task-id>   # 查看任务活性轨迹
//	taskflow version                      # 显示版本信息
// =============================================================================
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/taskflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runStart(os.Args[2:])
	case "approve":
		runDecision(os.Args[2:], true)
	case "reject":
		runDecision(os.Args[2:], false)
	case "inspect":
		runInspect(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("TaskFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`TaskFlow - Resumable Task Execution

Usage:
  taskflow <command> [options]

Commands:
  serve     Start the worker, pipeline API and metrics endpoint
  run       Start an order fulfillment pipeline instance
  approve   Approve a pipeline waiting for a decision
  reject    Reject a pipeline waiting for a decision
  inspect   Inspect archived instances or task liveness traces
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --addr <url>      Server address (default http://localhost:8080)
  --order <path>    Path to order JSON file
  --wait            Block until the instance reaches a terminal state

Options for 'approve' / 'reject':
  --addr <url>      Server address
  -m <text>         Feedback message (reject only)

Inspect subcommands:
  inspect instances [--pipeline <name>] [--limit <n>]
  inspect instance <instance-id>
  inspect liveness <task-instance-id>

Examples:
  taskflow serve --config /etc/taskflow/config.yaml
  taskflow run --order testdata/order.json --wait
  taskflow approve order-A1001
  taskflow reject order-A1001 -m "use FEDEX instead"
  taskflow inspect liveness order-A1001:pack_order_items`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

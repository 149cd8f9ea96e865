package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: $M600_CONFIG or configs/example.yaml)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动
	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

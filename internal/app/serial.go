package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/serialport"
)

// StartSerialPorts 为每个配置的串口启动读循环（打开失败会周期重试），
// 返回的 WaitGroup 在全部读循环退出后完成。
func StartSerialPorts(ctx context.Context, ports []cfgpkg.SerialPortConfig, h link.Handler, logger *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, pc := range ports {
		p := serialport.New(pc, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, h)
		}()
		logger.Info("serial link started",
			zap.String("link", pc.LinkID()),
			zap.String("path", pc.Path),
			zap.Int("baud", pc.Baud))
	}
	return &wg
}

// SerialLinkIDs 配置的串口链路ID
func SerialLinkIDs(ports []cfgpkg.SerialPortConfig) []string {
	ids := make([]string, 0, len(ports))
	for _, p := range ports {
		ids = append(ids, p.LinkID())
	}
	return ids
}

package adapter

import "github.com/taoyao-code/m600-assistant/internal/protocol/m600"

// Adapter 单条链路的协议适配器，由链路读协程串行驱动
// 要求：
// - Sniff 用于首批字节初判（波特率错配时通常不以帧头开始）
// - ProcessBytes 处理原始字节流（内部负责半包/粘包/噪声），解出的记录由实现分发
// - Stats 返回累计的流式诊断计数
// - Buffered 返回尚未组成完整帧的字节数
// - Reset 在链路断开或设备重开后清空接收缓冲
type Adapter interface {
	Sniff(prefix []byte) bool
	ProcessBytes(p []byte) error
	Stats() m600.StreamStats
	Buffered() int
	Reset()
}

package m600

import "errors"

// Adapter M600 协议适配器：流式解码 + 路由表
type Adapter struct {
	codec *Codec
	table *Table
}

func NewAdapter() *Adapter { return &Adapter{codec: NewCodec(), table: NewTable()} }

// Register 注册模块/命令处理器
func (a *Adapter) Register(module Module, cmd Command, h Handler) { a.table.Register(module, cmd, h) }

// SetFallback 注册兜底处理器
func (a *Adapter) SetFallback(h Handler) { a.table.SetFallback(h) }

// ProcessBytes 处理上行字节流
// 解码失败的帧不影响同批次其余记录的路由，错误合并后返回。
func (a *Adapter) ProcessBytes(p []byte) error {
	recs, decErr := a.codec.FeedBytes(p)
	errs := []error{decErr}
	for _, r := range recs {
		if err := a.table.Route(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sniff 判断是否为 M600 帧头 5A A5
func (a *Adapter) Sniff(prefix []byte) bool {
	if len(prefix) < 2 {
		return false
	}
	return prefix[0] == HeaderByte0 && prefix[1] == HeaderByte1
}

// Stats 流式解码诊断计数
func (a *Adapter) Stats() StreamStats { return a.codec.Stats() }

// Buffered 尚未组成完整帧的缓冲字节数
func (a *Adapter) Buffered() int { return a.codec.Buffered() }

// Reset 清空接收缓冲（链路重连时调用）
func (a *Adapter) Reset() { a.codec.Reset() }

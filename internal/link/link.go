package link

import "errors"

// 链路类型
const (
	KindSerial = "serial"
	KindTCP    = "tcp"
)

var ErrClosed = errors.New("link closed")

// Link 一条到 M600 控制板的字节链路（本地串口或串口服务器透传连接）
type Link interface {
	ID() string
	Kind() string
	// Write 写入一帧；实现负责复制数据
	Write(b []byte) error
	Close() error
	// Done 链路关闭后被关闭
	Done() <-chan struct{}
}

// Callbacks 链路事件回调
// OnData 由链路读协程串行调用，不可阻塞；OnClose 在读循环结束后调用一次。
// OnReopen 在读错误后设备重新打开、下一次读取之前调用，调用方应清空半帧缓冲。
type Callbacks struct {
	OnData   func(p []byte)
	OnReopen func()
	OnClose  func()
}

// Handler 链路建立时调用，返回该链路的回调
type Handler func(l Link) Callbacks

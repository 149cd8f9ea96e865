package m600

// StreamStats 流式解码诊断计数
type StreamStats struct {
	Frames         uint64 `json:"frames"`          // 成功解出的帧数
	CRCErrors      uint64 `json:"crc_errors"`      // CRC 校验失败次数
	FalseHeaders   uint64 `json:"false_headers"`   // 帧头后方向字节不是上行的次数
	NoiseBytes     uint64 `json:"noise_bytes"`     // 帧头之前被丢弃的字节数
	DiscardedBytes uint64 `json:"discarded_bytes"` // 丢弃的总字节数
}

// StreamDecoder 处理半包/粘包/噪声的流式解码器
// 缓冲区归单个解码器独占，不支持并发 Feed：每条链路只由一个读协程驱动。
type StreamDecoder struct {
	buf     []byte
	pending []*Frame
	stats   StreamStats
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{buf: make([]byte, 0, MaxFrameLen)}
}

// Feed 追加数据并尽可能解出帧，解出的帧通过 Drain 取走
func (d *StreamDecoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	d.buf = append(d.buf, p...)
	d.extract()
}

// Drain 返回上次 Drain 之后解出的全部帧（可能为空）
func (d *StreamDecoder) Drain() []*Frame {
	out := d.pending
	d.pending = nil
	return out
}

// Decode Feed + Drain 的便捷组合
func (d *StreamDecoder) Decode(p []byte) []*Frame {
	d.Feed(p)
	return d.Drain()
}

// Buffered 当前缓冲的字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Stats 返回诊断计数快照
func (d *StreamDecoder) Stats() StreamStats { return d.stats }

// Reset 清空缓冲区与未取走的帧（计数保留）
func (d *StreamDecoder) Reset() {
	d.buf = d.buf[:0]
	d.pending = nil
}

func (d *StreamDecoder) extract() {
	for {
		if len(d.buf) < MinFrameLen {
			// 还需要更多字节
			return
		}
		start := indexHeader(d.buf)
		if start < 0 {
			// 无帧头：清空缓冲；末尾的 0x5A 可能是跨包帧头的前半部分，保留
			keep := 0
			if d.buf[len(d.buf)-1] == HeaderByte0 {
				keep = 1
			}
			d.stats.NoiseBytes += uint64(len(d.buf) - keep)
			d.discard(len(d.buf) - keep)
			return
		}
		if start > 0 {
			// 丢弃帧头之前的噪声
			d.stats.NoiseBytes += uint64(start)
			d.discard(start)
		}
		if len(d.buf) < MinFrameLen {
			return
		}
		if Direction(d.buf[2]) != DirDeviceToHost {
			// 数据区内偶然出现的 5A A5，滑动1字节继续同步
			d.stats.FalseHeaders++
			d.discard(1)
			continue
		}
		packetLen := MinFrameLen + int(d.buf[5])
		if len(d.buf) < packetLen {
			// 半包，等待更多（不丢弃）
			return
		}
		fr, err := Parse(d.buf[:packetLen])
		if err != nil {
			// 校验失败只滑动1字节，帧内可能藏着真正的帧头
			d.stats.CRCErrors++
			d.discard(1)
			continue
		}
		d.stats.Frames++
		d.pending = append(d.pending, fr)
		d.consume(packetLen)
	}
}

// discard 丢弃前 n 个字节（计入诊断计数）
func (d *StreamDecoder) discard(n int) {
	d.stats.DiscardedBytes += uint64(n)
	d.consume(n)
}

// consume 从缓冲区头部移除 n 个字节，剩余数据搬移到底层数组头部以复用空间
func (d *StreamDecoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

// indexHeader 返回缓冲区中第一个帧头 5A A5 的位置
func indexHeader(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == HeaderByte0 && b[i+1] == HeaderByte1 {
			return i
		}
	}
	return -1
}

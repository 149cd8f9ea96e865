package m600

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record 一帧上行数据及其解码结果
// Values 为空表示该模块/命令没有字段表，调用方可使用 Frame.Payload 原始数据。
type Record struct {
	Frame  *Frame    `json:"-"`
	Module Module    `json:"module"`
	Cmd    Command   `json:"command"`
	Values Values    `json:"values,omitempty"`
	Raw    string    `json:"raw"`
	At     time.Time `json:"at"`
}

// Get 按字段名取值
func (r *Record) Get(name string) (Value, bool) {
	return r.Values.Get(name)
}

// Summary 单行展示
func (r *Record) Summary() string {
	if len(r.Values) == 0 {
		return fmt.Sprintf("%s %s payload=[%s]", r.Module, r.Cmd, HexDump(r.Frame.Payload))
	}
	return fmt.Sprintf("%s %s %s", r.Module, r.Cmd, r.Values)
}

// EncodeCommand 编码下行命令帧，可直接写入串口
func EncodeCommand(module Module, cmd Command, fields map[string]int) ([]byte, error) {
	payload, err := EncodePayload(module, cmd, fields)
	if err != nil {
		return nil, err
	}
	return Build(DirHostToDevice, module, cmd, payload)
}

// DecodeFrame 按帧方向选择字段表解码
// 无字段表时返回仅含原始数据的记录与 ErrNoSchema。
func DecodeFrame(fr *Frame) (*Record, error) {
	rec := &Record{
		Frame:  fr,
		Module: fr.Module,
		Cmd:    fr.Command,
		Raw:    HexDump(fr.Raw),
		At:     time.Now(),
	}
	s, ok := LookupSchema(fr.Direction, fr.Module, fr.Command)
	if !ok {
		return rec, &DecodeError{Module: fr.Module, Command: fr.Command, Err: ErrNoSchema}
	}
	vals, err := DecodeWith(s, fr.Payload)
	if err != nil {
		return nil, err
	}
	rec.Values = vals
	return rec, nil
}

// Codec 单条链路的收发编解码：流式拆帧 + 数据区解码
type Codec struct {
	dec *StreamDecoder
}

// NewCodec 创建编解码器
func NewCodec() *Codec {
	return &Codec{dec: NewStreamDecoder()}
}

// FeedBytes 喂入一段原始字节，返回本次解出的全部记录
// 数据区过短的帧被丢弃并以 *DecodeError 汇总返回，其余记录照常返回；
// 无字段表的帧不算错误，记录只带原始数据。
func (c *Codec) FeedBytes(chunk []byte) ([]*Record, error) {
	frames := c.dec.Decode(chunk)
	if len(frames) == 0 {
		return nil, nil
	}
	recs := make([]*Record, 0, len(frames))
	var errs []error
	for _, fr := range frames {
		rec, err := DecodeFrame(fr)
		if err != nil && !errors.Is(err, ErrNoSchema) {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errors.Join(errs...)
}

// Stats 流式解码诊断计数
func (c *Codec) Stats() StreamStats { return c.dec.Stats() }

// Buffered 尚未组成完整帧的缓冲字节数
func (c *Codec) Buffered() int { return c.dec.Buffered() }

// Reset 清空接收缓冲
func (c *Codec) Reset() { c.dec.Reset() }

// HexDump 以空格分隔的大写十六进制展示
func HexDump(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// ParseHex 解析十六进制字符串，忽略空白、逗号与 0x 前缀
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer("0x", "", "0X", "", ",", " ").Replace(s)
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

package m600

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoSchema        = errors.New("no payload schema")
	ErrPayloadTooShort = errors.New("payload too short")
)

// DecodeError 某模块某命令的数据区解码失败
type DecodeError struct {
	Module  Module
	Command Command
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s/%s: %v", e.Module, e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Value 解码后的单个字段
type Value struct {
	Name   string  `json:"name"`
	Raw    uint16  `json:"raw"`
	Number float64 `json:"value"`            // 缩放后的数值；无缩放时等于 Raw
	Symbol string  `json:"symbol,omitempty"` // 哨兵或枚举符号
	Unit   string  `json:"unit,omitempty"`
	Fault  bool    `json:"fault,omitempty"` // 命中哨兵值，Number 无意义

	scaled bool
	hex    bool
}

// String 展示格式：哨兵/枚举显示符号，温度保留1位小数，错误码十六进制
func (v Value) String() string {
	switch {
	case v.Symbol != "":
		return v.Symbol
	case v.hex:
		return fmt.Sprintf("0x%02X", v.Raw)
	case v.scaled:
		return strconv.FormatFloat(v.Number, 'f', 1, 64) + v.Unit
	}
	s := strconv.FormatUint(uint64(v.Raw), 10)
	if v.Unit != "" && v.Unit[0] >= '0' && v.Unit[0] <= '9' {
		// 倍数单位，如 10×100ms
		return s + "×" + v.Unit
	}
	return s + v.Unit
}

// Values 按线序排列的字段集合
type Values []Value

// Get 按名称取字段
func (vs Values) Get(name string) (Value, bool) {
	for _, v := range vs {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// Map 转为 name -> 展示字符串
func (vs Values) Map() map[string]string {
	m := make(map[string]string, len(vs))
	for _, v := range vs {
		m[v.Name] = v.String()
	}
	return m
}

func (vs Values) String() string {
	var sb strings.Builder
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.Name)
		sb.WriteByte('=')
		sb.WriteString(v.String())
	}
	return sb.String()
}

// EncodePayload 按下行字段表编码数据区
// 每个字段按宽度截断（&0xFF / &0xFFFF）后小端写入，缺省字段使用表内默认值；
// 表中不存在的字段名被忽略。
func EncodePayload(module Module, cmd Command, fields map[string]int) ([]byte, error) {
	s, ok := LookupSchema(DirHostToDevice, module, cmd)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSchema, module, cmd)
	}
	return EncodeWith(s, fields), nil
}

// EncodeWith 使用指定字段表编码
func EncodeWith(s *Schema, fields map[string]int) []byte {
	buf := make([]byte, 0, s.Width())
	for _, f := range s.Fields {
		v, ok := fields[f.Name]
		if !ok {
			v = int(f.Default)
		}
		if f.Width == 1 {
			buf = append(buf, byte(v&0xFF))
		} else {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(v&0xFFFF))
		}
	}
	return buf
}

// DecodePayload 按上行字段表解码数据区，超出字段表宽度的尾部字节被忽略
func DecodePayload(module Module, cmd Command, payload []byte) (Values, error) {
	s, ok := LookupSchema(DirDeviceToHost, module, cmd)
	if !ok {
		return nil, &DecodeError{Module: module, Command: cmd, Err: ErrNoSchema}
	}
	return DecodeWith(s, payload)
}

// DecodeWith 使用指定字段表解码
func DecodeWith(s *Schema, payload []byte) (Values, error) {
	if len(payload) < s.Width() {
		return nil, &DecodeError{
			Module:  s.Module,
			Command: s.Command,
			Err:     fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadTooShort, len(payload), s.Width()),
		}
	}
	out := make(Values, 0, len(s.Fields))
	off := 0
	for i := range s.Fields {
		f := &s.Fields[i]
		var raw uint16
		if f.Width == 1 {
			raw = uint16(payload[off])
		} else {
			raw = binary.LittleEndian.Uint16(payload[off:])
		}
		off += f.Width
		out = append(out, decodeField(f, raw))
	}
	return out, nil
}

func decodeField(f *Field, raw uint16) Value {
	v := Value{Name: f.Name, Raw: raw, Number: float64(raw), Unit: f.Unit, hex: f.Hex}
	for _, s := range f.Sentinels {
		if s.Raw == raw {
			v.Symbol, v.Fault, v.Number = s.Symbol, true, 0
			return v
		}
	}
	if f.Div != 0 {
		v.Number = float64(raw) / float64(f.Div)
		v.scaled = true
	}
	if f.Enum != nil {
		// 未知枚举值保留数值展示
		v.Symbol = f.Enum[raw]
	}
	return v
}

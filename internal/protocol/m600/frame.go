package m600

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 帧格式：5A A5 + direction(1) + module(1) + cmd(1) + len(1) + data(len) + crcLE(2)
const (
	HeaderByte0 = 0x5A
	HeaderByte1 = 0xA5

	// headerLen 数据区之前的固定字段长度
	headerLen = 6
	// MinFrameLen 空数据区时的最小帧长度
	MinFrameLen = headerLen + 2
	// MaxPayloadLen 长度字段只有1字节
	MaxPayloadLen = 0xFF
	// MaxFrameLen 最大帧长度
	MaxFrameLen = MinFrameLen + MaxPayloadLen
)

var (
	ErrTooShort       = errors.New("frame too short")
	ErrBadHeader      = errors.New("bad frame header")
	ErrIncomplete     = errors.New("incomplete frame")
	ErrCRCMismatch    = errors.New("crc mismatch")
	ErrPayloadTooLong = errors.New("payload too long")
)

// Direction 传输方向
type Direction uint8

const (
	DirHostToDevice Direction = 0x00 // 上位机 -> 设备
	DirDeviceToHost Direction = 0x01 // 设备 -> 上位机
)

func (d Direction) String() string {
	switch d {
	case DirHostToDevice:
		return "host_to_device"
	case DirDeviceToHost:
		return "device_to_host"
	}
	return fmt.Sprintf("direction(0x%02X)", uint8(d))
}

// Module 治疗模块
type Module uint8

const (
	ModuleUltrasound     Module = 0x01 // 超声
	ModuleRadioFrequency Module = 0x02 // 射频
	ModuleShockwave      Module = 0x03 // 冲击波
	ModuleHeat           Module = 0x04 // 热疗
)

// Modules 全部已知模块（按模块ID排序）
var Modules = []Module{ModuleUltrasound, ModuleRadioFrequency, ModuleShockwave, ModuleHeat}

func (m Module) String() string {
	switch m {
	case ModuleUltrasound:
		return "ultrasound"
	case ModuleRadioFrequency:
		return "radio_frequency"
	case ModuleShockwave:
		return "shockwave"
	case ModuleHeat:
		return "heat"
	}
	return fmt.Sprintf("module(0x%02X)", uint8(m))
}

// Known 是否为已知模块
func (m Module) Known() bool {
	return m >= ModuleUltrasound && m <= ModuleHeat
}

// Command 命令码
type Command uint8

const (
	CmdGetStatus    Command = 0x00 // 获取状态
	CmdSetWorkState Command = 0x01 // 设置工作状态
	CmdSetConfig    Command = 0x02 // 设置内部配置（热疗为预热）
)

// Commands 全部已知命令
var Commands = []Command{CmdGetStatus, CmdSetWorkState, CmdSetConfig}

func (c Command) String() string {
	switch c {
	case CmdGetStatus:
		return "get_status"
	case CmdSetWorkState:
		return "set_work_state"
	case CmdSetConfig:
		return "set_config"
	}
	return fmt.Sprintf("command(0x%02X)", uint8(c))
}

// Known 是否为已知命令
func (c Command) Known() bool {
	return c <= CmdSetConfig
}

// Frame M600 协议帧，构造后不再修改
type Frame struct {
	Direction Direction
	Module    Module
	Command   Command
	Payload   []byte // 数据区副本
	Checksum  uint16 // 数据区 CRC16
	Len       int    // 本帧在字节流中占用的长度（8+len）
	Raw       []byte // 完整帧副本
}

// IsUplink 判断是否为设备上行帧
func (f *Frame) IsUplink() bool {
	return f.Direction == DirDeviceToHost
}

// Build 构造一帧：5A A5 dir module cmd len data crc_lo crc_hi
// 数据区超过255字节时返回 ErrPayloadTooLong，不输出任何字节。
func Build(dir Direction, module Module, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLong, len(payload), MaxPayloadLen)
	}
	buf := make([]byte, 0, MinFrameLen+len(payload))
	buf = append(buf, HeaderByte0, HeaderByte1, byte(dir), byte(module), byte(cmd), byte(len(payload)))
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint16(buf, CRC16(payload))
	return buf, nil
}

// Parse 解析一个完整帧（严格校验：长度、帧头、CRC）
// 缓冲区中超出本帧长度的字节被忽略，调用方根据 Frame.Len 推进游标。
func Parse(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameLen {
		return nil, ErrTooShort
	}
	if raw[0] != HeaderByte0 || raw[1] != HeaderByte1 {
		return nil, ErrBadHeader
	}
	dataLen := int(raw[5])
	total := MinFrameLen + dataLen
	if len(raw) < total {
		return nil, ErrIncomplete
	}
	payload := raw[headerLen : headerLen+dataLen]
	got := binary.LittleEndian.Uint16(raw[headerLen+dataLen : total])
	if err := VerifyCRC16(payload, got); err != nil {
		return nil, err
	}

	fr := &Frame{
		Direction: Direction(raw[2]),
		Module:    Module(raw[3]),
		Command:   Command(raw[4]),
		Payload:   make([]byte, dataLen),
		Checksum:  got,
		Len:       total,
		Raw:       make([]byte, total),
	}
	copy(fr.Payload, payload)
	copy(fr.Raw, raw[:total])
	return fr, nil
}

package m600

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usStatusPayload = []byte{0x01, 0xB0, 0x04, 0x90, 0x01, 0x3C, 0x00, 0x0A, 0xFF, 0xFF, 0x00, 0x00}

func mustBuild(t *testing.T, dir Direction, mod Module, cmd Command, payload []byte) []byte {
	t.Helper()
	raw, err := Build(dir, mod, cmd, payload)
	require.NoError(t, err)
	return raw
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestStreamDecoder_GarbageBetweenFrames(t *testing.T) {
	f1 := mustBuild(t, DirDeviceToHost, ModuleUltrasound, CmdGetStatus, usStatusPayload)
	f2 := mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []byte{0x00})
	stream := concat([]byte{0x11, 0x22, 0x5A, 0x33}, f1, []byte{0x44, 0x5A, 0x00, 0x55, 0x66}, f2)

	check := func(t *testing.T, frames []*Frame) {
		t.Helper()
		require.Len(t, frames, 2)
		assert.Equal(t, f1, frames[0].Raw)
		assert.Equal(t, f2, frames[1].Raw)
	}

	t.Run("单次喂入", func(t *testing.T) {
		d := NewStreamDecoder()
		check(t, d.Decode(stream))
		assert.Equal(t, 0, d.Buffered())
	})

	t.Run("任意位置拆成两段", func(t *testing.T) {
		for cut := 0; cut <= len(stream); cut++ {
			d := NewStreamDecoder()
			d.Feed(stream[:cut])
			d.Feed(stream[cut:])
			check(t, d.Drain())
		}
	})

	t.Run("逐字节喂入", func(t *testing.T) {
		d := NewStreamDecoder()
		var frames []*Frame
		for i := range stream {
			frames = append(frames, d.Decode(stream[i:i+1])...)
		}
		check(t, frames)
	})
}

func TestStreamDecoder_PartialFrameStall(t *testing.T) {
	raw := mustBuild(t, DirDeviceToHost, ModuleHeat, CmdGetStatus, make([]byte, 19))
	d := NewStreamDecoder()
	for i := 0; i < len(raw)-1; i++ {
		assert.Empty(t, d.Decode(raw[i:i+1]), "frame emitted early at byte %d", i)
	}
	assert.Equal(t, len(raw)-1, d.Buffered())
	frames := d.Decode(raw[len(raw)-1:])
	require.Len(t, frames, 1)
	assert.Equal(t, raw, frames[0].Raw)
	assert.Equal(t, uint64(0), d.Stats().DiscardedBytes)
}

func TestStreamDecoder_FalseHeader(t *testing.T) {
	// 5A A5 后方向字节为 0x00（下行），视为数据中的偶然帧头
	valid := mustBuild(t, DirDeviceToHost, ModuleShockwave, CmdGetStatus, []byte{0x01, 0x08, 0x3C, 0x00, 0x0A, 0x90, 0x01, 0x00, 0x00})
	stream := concat([]byte{0x5A, 0xA5, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}, valid)

	d := NewStreamDecoder()
	frames := d.Decode(stream)
	require.Len(t, frames, 1)
	assert.Equal(t, valid, frames[0].Raw)
	st := d.Stats()
	assert.Equal(t, uint64(1), st.FalseHeaders)
	assert.Equal(t, uint64(1), st.Frames)
}

func TestStreamDecoder_DownlinkEchoIgnored(t *testing.T) {
	echo := mustBuild(t, DirHostToDevice, ModuleUltrasound, CmdGetStatus, []byte{0x00})
	d := NewStreamDecoder()
	assert.Empty(t, d.Decode(echo))
	assert.Equal(t, uint64(1), d.Stats().FalseHeaders)
}

func TestStreamDecoder_CRCFailureResync(t *testing.T) {
	// 声明长度 0x20 的坏帧内部藏着一帧真实数据
	inner := mustBuild(t, DirDeviceToHost, ModuleUltrasound, CmdGetStatus, usStatusPayload)
	stream := concat([]byte{0x5A, 0xA5, 0x01, 0x01, 0x00, 0x20}, inner, make([]byte, 14))

	d := NewStreamDecoder()
	frames := d.Decode(stream)
	require.Len(t, frames, 1)
	assert.Equal(t, inner, frames[0].Raw)
	st := d.Stats()
	assert.Equal(t, uint64(1), st.CRCErrors)
	assert.Equal(t, 0, d.Buffered())
}

func TestStreamDecoder_CorruptedFrameDropped(t *testing.T) {
	bad := mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdGetStatus, make([]byte, 10))
	bad[8] ^= 0x01
	good := mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []byte{0x02})

	d := NewStreamDecoder()
	frames := d.Decode(concat(bad, good))
	require.Len(t, frames, 1)
	assert.Equal(t, good, frames[0].Raw)
	assert.GreaterOrEqual(t, d.Stats().CRCErrors, uint64(1))
}

func TestStreamDecoder_NoHeaderDiscards(t *testing.T) {
	d := NewStreamDecoder()
	assert.Empty(t, d.Decode([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}))
	assert.Equal(t, 0, d.Buffered())
	assert.Equal(t, uint64(9), d.Stats().NoiseBytes)
}

func TestStreamDecoder_KeepsTrailingHeaderByte(t *testing.T) {
	raw := mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []byte{0x00})
	d := NewStreamDecoder()
	// 噪声与帧头第一个字节在同一包内到达
	assert.Empty(t, d.Decode(concat([]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}, raw[:1])))
	assert.Equal(t, 1, d.Buffered())
	frames := d.Decode(raw[1:])
	require.Len(t, frames, 1)
	assert.Equal(t, raw, frames[0].Raw)
}

func TestStreamDecoder_Reset(t *testing.T) {
	raw := mustBuild(t, DirDeviceToHost, ModuleHeat, CmdGetStatus, make([]byte, 19))
	d := NewStreamDecoder()
	d.Feed(raw[:10])
	d.Reset()
	assert.Equal(t, 0, d.Buffered())
	assert.Empty(t, d.Decode(raw[10:]))
	frames := d.Decode(raw)
	require.Len(t, frames, 1)
}

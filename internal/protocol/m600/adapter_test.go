package m600

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RegisterAndRoute(t *testing.T) {
	tbl := NewTable()
	called := false
	tbl.Register(ModuleHeat, CmdGetStatus, func(r *Record) error { called = true; return nil })
	_ = tbl.Route(&Record{Module: ModuleHeat, Cmd: CmdGetStatus})
	if !called {
		t.Fatalf("handler not called")
	}
	// 未注册且无兜底
	assert.NoError(t, tbl.Route(&Record{Module: ModuleShockwave, Cmd: CmdSetConfig}))
}

func TestAdapter_ProcessBytes(t *testing.T) {
	a := NewAdapter()
	var got []Module
	var fallback int
	a.Register(ModuleUltrasound, CmdGetStatus, func(r *Record) error {
		got = append(got, r.Module)
		return nil
	})
	a.SetFallback(func(r *Record) error { fallback++; return nil })

	stream := concat(
		mustBuild(t, DirDeviceToHost, ModuleUltrasound, CmdGetStatus, usStatusPayload),
		[]byte{0x00, 0x01},
		mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []byte{0x00}),
	)
	require.NoError(t, a.ProcessBytes(stream))
	assert.Equal(t, []Module{ModuleUltrasound}, got)
	assert.Equal(t, 1, fallback)
}

func TestAdapter_HandlerErrorDoesNotStopBatch(t *testing.T) {
	a := NewAdapter()
	boom := errors.New("boom")
	calls := 0
	a.SetFallback(func(r *Record) error { calls++; return boom })

	f := mustBuild(t, DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []byte{0x00})
	err := a.ProcessBytes(concat(f, f))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestAdapter_Sniff(t *testing.T) {
	a := NewAdapter()
	assert.True(t, a.Sniff([]byte{0x5A, 0xA5, 0x01}))
	assert.False(t, a.Sniff([]byte{0x5A}))
	assert.False(t, a.Sniff([]byte{0x44, 0x4E, 0x59}))
}

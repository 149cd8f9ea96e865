package m600

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModule(t *testing.T) {
	tests := []struct {
		in   string
		want Module
		ok   bool
	}{
		{"ultrasound", ModuleUltrasound, true},
		{"RF", ModuleRadioFrequency, true},
		{"shockwave", ModuleShockwave, true},
		{"ht", ModuleHeat, true},
		{"4", ModuleHeat, true},
		{"0x03", ModuleShockwave, true},
		{"0x10", Module(0x10), true},
		{"laser", 0, false},
		{"256", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModule(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("set_work_state")
	require.NoError(t, err)
	assert.Equal(t, CmdSetWorkState, c)

	c, err = ParseCommand("0x02")
	require.NoError(t, err)
	assert.Equal(t, CmdSetConfig, c)

	_, err = ParseCommand("reboot")
	assert.Error(t, err)
}

func TestNamesJSON(t *testing.T) {
	var req struct {
		Module  Module  `json:"module"`
		Command Command `json:"command"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"module":"heat","command":"get_status"}`), &req))
	assert.Equal(t, ModuleHeat, req.Module)
	assert.Equal(t, CmdGetStatus, req.Command)

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"module":"heat","command":"get_status"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"module":"laser"}`), &req))
}

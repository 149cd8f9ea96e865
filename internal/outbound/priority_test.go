package outbound

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

func TestCommandPriority(t *testing.T) {
	tests := []struct {
		name     string
		cmd      m600.Command
		fields   map[string]int
		expected int
	}{
		{"停止=紧急优先级", m600.CmdSetWorkState, map[string]int{"work_state": 0}, PriorityEmergency},
		{"复位=紧急优先级", m600.CmdSetWorkState, map[string]int{"work_state": 2}, PriorityEmergency},
		{"启动=高优先级", m600.CmdSetWorkState, map[string]int{"work_state": 1, "work_level": 20}, PriorityHigh},
		{"缺省工作状态按启动处理", m600.CmdSetWorkState, nil, PriorityHigh},
		{"状态查询=普通优先级", m600.CmdGetStatus, nil, PriorityNormal},
		{"参数配置=普通优先级", m600.CmdSetConfig, map[string]int{"temp_limit": 420}, PriorityNormal},
		{"关闭预热=紧急优先级", m600.CmdSetConfig, map[string]int{"preheat_state": 0}, PriorityEmergency},
		{"未知命令=普通优先级", m600.Command(0x99), nil, PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CommandPriority(tt.cmd, tt.fields))
		})
	}
}

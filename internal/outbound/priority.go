package outbound

import "github.com/taoyao-code/m600-assistant/internal/protocol/m600"

// 下行命令优先级
// 注意: 数值越小=优先级越高
const (
	// PriorityEmergency 停止、复位，插队到所有待发命令之前，
	// 并取代同一链路同一模块尚未发出的控制命令
	PriorityEmergency = 1

	// PriorityHigh 启动治疗
	PriorityHigh = 2

	// PriorityNormal 状态查询、参数配置
	PriorityNormal = 3
)

// CommandPriority 根据模块命令与字段返回优先级
func CommandPriority(cmd m600.Command, fields map[string]int) int {
	switch cmd {
	case m600.CmdSetWorkState:
		// 缺省 work_state 按字段表默认值（启动）处理
		if st, ok := fields["work_state"]; ok && st&0xFF != m600.WorkStateStart {
			return PriorityEmergency
		}
		return PriorityHigh
	case m600.CmdSetConfig:
		// 热疗预热关闭同样视为停止
		if st, ok := fields["preheat_state"]; ok && st&0xFF == m600.WorkStateStop {
			return PriorityEmergency
		}
		return PriorityNormal
	default:
		return PriorityNormal
	}
}

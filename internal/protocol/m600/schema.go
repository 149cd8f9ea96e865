package m600

// 工作状态
const (
	WorkStateStop  = 0x00
	WorkStateStart = 0x01
	WorkStateReset = 0x02
)

// 连接状态：bit0=脚踏开关打开，bit4=治疗头断开
const (
	ConnConnectedFootClosed    = 0x00
	ConnConnectedFootOpen      = 0x01
	ConnDisconnectedFootClosed = 0x10
	ConnDisconnectedFootOpen   = 0x11
)

// 温度错误码
const (
	TempNTCOpen   = 0xFFFF // NTC 开路
	TempNTCShort  = 0xEEFF // NTC 短路
	TempOverLimit = 0xFFFF // 温度上限超限（固件协议头 TEMP_ERROR_OVER_LIMIT）
)

// 配置结果
const (
	ConfigResultSuccess   = 0x00
	ConfigResultFail      = 0x01
	ConfigResultOverLimit = 0x02
)

// Sentinel 保留原始值 -> 错误符号
type Sentinel struct {
	Raw    uint16 `json:"raw"`
	Symbol string `json:"symbol"`
}

// Field 字段描述：固定宽度、无符号小端
type Field struct {
	Name      string            `json:"name"`
	Width     int               `json:"width"`               // 1 或 2
	Div       uint16            `json:"div,omitempty"`       // 缩放除数，0 表示不缩放
	Unit      string            `json:"unit,omitempty"`      // 展示单位
	Default   uint16            `json:"default"`             // 编码缺省值
	Range     string            `json:"range,omitempty"`     // 参数范围说明（不强制）
	Sentinels []Sentinel        `json:"sentinels,omitempty"` // 错误哨兵值
	Enum      map[uint16]string `json:"enum,omitempty"`      // 枚举符号
	Hex       bool              `json:"hex,omitempty"`       // 以 0x%02X 展示
}

// Schema 某方向某模块某命令的数据区结构
type Schema struct {
	Direction Direction `json:"direction"`
	Module    Module    `json:"module"`
	Command   Command   `json:"command"`
	Fields    []Field   `json:"fields"`
}

// Width 数据区固定总宽度
func (s *Schema) Width() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Width
	}
	return n
}

type schemaKey struct {
	dir Direction
	mod Module
	cmd Command
}

var (
	workStateEnum = map[uint16]string{
		WorkStateStop:  "stop",
		WorkStateStart: "start",
		WorkStateReset: "reset",
	}
	connStateEnum = map[uint16]string{
		ConnConnectedFootClosed:    "connected_foot_closed",
		ConnConnectedFootOpen:      "connected_foot_open",
		ConnDisconnectedFootClosed: "disconnected_foot_closed",
		ConnDisconnectedFootOpen:   "disconnected_foot_open",
	}
	configResultEnum = map[uint16]string{
		ConfigResultSuccess:   "success",
		ConfigResultFail:      "fail",
		ConfigResultOverLimit: "over_limit",
	}
	headTempSentinels = []Sentinel{
		{Raw: TempNTCOpen, Symbol: "ntc_open"},
		{Raw: TempNTCShort, Symbol: "ntc_short"},
	}
	tempLimitSentinels = []Sentinel{
		{Raw: TempOverLimit, Symbol: "over_limit"},
	}
)

func u8(name string, def uint16) Field  { return Field{Name: name, Width: 1, Default: def} }
func u16(name string, def uint16) Field { return Field{Name: name, Width: 2, Default: def} }

func withUnit(f Field, unit, rng string) Field {
	f.Unit, f.Range = unit, rng
	return f
}

func workState(name string) Field {
	return Field{Name: name, Width: 1, Default: WorkStateStart, Enum: workStateEnum, Range: "0 stop, 1 start, 2 reset"}
}

func tempLimit(name string, def uint16) Field {
	return Field{Name: name, Width: 2, Div: 10, Unit: "℃", Default: def, Range: "350-480", Sentinels: tempLimitSentinels}
}

func headTemp() Field {
	return Field{Name: "head_temp", Width: 2, Div: 10, Unit: "℃", Sentinels: headTempSentinels}
}

func connState() Field {
	return Field{Name: "conn_state", Width: 1, Enum: connStateEnum}
}

func errorCode() Field {
	return Field{Name: "error_code", Width: 1, Hex: true}
}

func configResult(name string) Field {
	return Field{Name: name, Width: 1, Enum: configResultEnum}
}

// schemaList 静态字段表，初始化时建立索引
var schemaList = []Schema{
	// ---------- 下行：上位机 -> 设备 ----------
	{DirHostToDevice, ModuleUltrasound, CmdGetStatus, []Field{u8("dummy", 0)}},
	{DirHostToDevice, ModuleRadioFrequency, CmdGetStatus, []Field{u8("dummy", 0)}},
	{DirHostToDevice, ModuleShockwave, CmdGetStatus, []Field{u8("dummy", 0)}},
	{DirHostToDevice, ModuleHeat, CmdGetStatus, []Field{u8("dummy", 0)}},

	{DirHostToDevice, ModuleUltrasound, CmdSetWorkState, []Field{
		workState("work_state"),
		withUnit(u16("work_time", 60), "s", "0-3600"),
		withUnit(u8("work_level", 10), "", "0-39"),
	}},
	{DirHostToDevice, ModuleRadioFrequency, CmdSetWorkState, []Field{
		workState("work_state"),
		withUnit(u16("work_time", 60), "s", "0-3600"),
		withUnit(u8("work_level", 10), "", "0-20"),
	}},
	{DirHostToDevice, ModuleShockwave, CmdSetWorkState, []Field{
		workState("work_state"),
		withUnit(u16("work_time", 60), "s", "0-3600"),
		withUnit(u8("work_level", 10), "", "0-26"),
		withUnit(u8("frequency", 8), "", "0-16"),
	}},
	{DirHostToDevice, ModuleHeat, CmdSetWorkState, []Field{
		workState("work_state"),
		withUnit(u16("work_time", 60), "s", "0-3600"),
		withUnit(u8("pressure", 50), "kPa", "10-100"),
		withUnit(u16("suck_time", 10), "100ms", "1-600"),
		withUnit(u16("release_time", 10), "100ms", "1-600"),
		tempLimit("temp_limit", 400),
	}},

	{DirHostToDevice, ModuleUltrasound, CmdSetConfig, []Field{
		withUnit(u16("frequency", 1200), "kHz", "1000-1400"),
		withUnit(u16("voltage", 1500), "10mV", "1000-2000"),
		tempLimit("temp_limit", 400),
	}},
	{DirHostToDevice, ModuleRadioFrequency, CmdSetConfig, []Field{
		tempLimit("temp_limit", 400),
	}},
	{DirHostToDevice, ModuleHeat, CmdSetConfig, []Field{
		{Name: "preheat_state", Width: 1, Default: WorkStateStart, Enum: workStateEnum, Range: "0 stop, 1 start"},
		withUnit(u16("work_time", 300), "s", "0-3600"),
		tempLimit("temp_limit", 400),
	}},

	// ---------- 上行：设备 -> 上位机 ----------
	{DirDeviceToHost, ModuleUltrasound, CmdGetStatus, []Field{
		workState("work_state"),
		withUnit(u16("frequency", 0), "kHz", "1000-1400"),
		tempLimit("temp_limit", 0),
		withUnit(u16("remain_time", 0), "s", "0-3600"),
		u8("work_level", 0),
		headTemp(),
		connState(),
		errorCode(),
	}},
	{DirDeviceToHost, ModuleRadioFrequency, CmdGetStatus, []Field{
		workState("work_state"),
		tempLimit("temp_limit", 0),
		withUnit(u16("remain_time", 0), "s", "0-3600"),
		u8("work_level", 0),
		headTemp(),
		connState(),
		errorCode(),
	}},
	{DirDeviceToHost, ModuleShockwave, CmdGetStatus, []Field{
		workState("work_state"),
		withUnit(u8("frequency", 0), "level", "1-16"),
		withUnit(u16("remain_time", 0), "s", "0-3600"),
		u8("work_level", 0),
		headTemp(),
		connState(),
		errorCode(),
	}},
	{DirDeviceToHost, ModuleHeat, CmdGetStatus, []Field{
		workState("work_state"),
		tempLimit("temp_limit", 0),
		withUnit(u16("remain_heat_time", 0), "s", "0-3600"),
		withUnit(u16("suck_time", 0), "10ms", "10-60000"),
		withUnit(u16("release_time", 0), "10ms", "10-60000"),
		withUnit(u8("pressure", 0), "kPa", "10-100"),
		headTemp(),
		workState("preheat_state"),
		tempLimit("preheat_temp_limit", 0),
		withUnit(u16("remain_preheat_time", 0), "s", "0-3600"),
		connState(),
		errorCode(),
	}},

	{DirDeviceToHost, ModuleUltrasound, CmdSetConfig, []Field{
		configResult("freq_result"),
		configResult("voltage_result"),
		configResult("temp_result"),
	}},
	{DirDeviceToHost, ModuleRadioFrequency, CmdSetConfig, []Field{
		configResult("temp_result"),
	}},
}

var schemaIndex = buildSchemaIndex(schemaList)

func buildSchemaIndex(list []Schema) map[schemaKey]*Schema {
	idx := make(map[schemaKey]*Schema, len(list))
	for i := range list {
		s := &list[i]
		idx[schemaKey{s.Direction, s.Module, s.Command}] = s
	}
	return idx
}

// LookupSchema 查找字段表
func LookupSchema(dir Direction, module Module, cmd Command) (*Schema, bool) {
	s, ok := schemaIndex[schemaKey{dir, module, cmd}]
	return s, ok
}

// Schemas 返回全部字段表的副本，修改返回值不影响编解码
func Schemas() []Schema {
	out := make([]Schema, len(schemaList))
	for i, s := range schemaList {
		fields := make([]Field, len(s.Fields))
		for j, f := range s.Fields {
			if f.Sentinels != nil {
				f.Sentinels = append([]Sentinel(nil), f.Sentinels...)
			}
			if f.Enum != nil {
				enum := make(map[uint16]string, len(f.Enum))
				for k, v := range f.Enum {
					enum[k] = v
				}
				f.Enum = enum
			}
			fields[j] = f
		}
		s.Fields = fields
		out[i] = s
	}
	return out
}

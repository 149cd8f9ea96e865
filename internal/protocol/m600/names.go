package m600

import (
	"fmt"
	"strconv"
	"strings"
)

// 模块简称
var moduleAliases = map[string]Module{
	"us": ModuleUltrasound,
	"rf": ModuleRadioFrequency,
	"sw": ModuleShockwave,
	"ht": ModuleHeat,
}

// ParseModule 解析模块：名称（ultrasound）、简称（us）或数值（1、0x01）
func ParseModule(s string) (Module, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m, ok := moduleAliases[s]; ok {
		return m, nil
	}
	for _, m := range Modules {
		if m.String() == s {
			return m, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown module %q", s)
	}
	return Module(n), nil
}

// ParseCommand 解析命令：名称（get_status）或数值（0、0x00）
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Commands {
		if c.String() == s {
			return c, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return Command(n), nil
}

func (m Module) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Module) UnmarshalText(b []byte) error {
	v, err := ParseModule(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (c Command) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Command) UnmarshalText(b []byte) error {
	v, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

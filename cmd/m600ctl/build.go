package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

type buildFlags struct {
	module  string
	command string
	sets    []string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.module, "module", "m", "", "Module: ultrasound|radio_frequency|shockwave|heat or 1-4 (required)")
	cmd.Flags().StringVarP(&f.command, "command", "c", "get_status", "Command: get_status|set_work_state|set_config or 0x00-0x02")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "Field value as name=value, repeatable")
}

// encode 按参数编码下行帧
func (f *buildFlags) encode() (m600.Module, m600.Command, []byte, error) {
	if f.module == "" {
		return 0, 0, nil, fmt.Errorf("required flag --module not set")
	}
	mod, err := m600.ParseModule(f.module)
	if err != nil {
		return 0, 0, nil, err
	}
	cmd, err := m600.ParseCommand(f.command)
	if err != nil {
		return 0, 0, nil, err
	}
	fields, err := parseSets(f.sets)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := checkFieldNames(mod, cmd, fields); err != nil {
		return 0, 0, nil, err
	}
	frame, err := m600.EncodeCommand(mod, cmd, fields)
	if err != nil {
		return 0, 0, nil, err
	}
	return mod, cmd, frame, nil
}

func newBuildCmd() *cobra.Command {
	flags := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Encode a host-to-board command frame",
		Example: `  m600ctl build -m ultrasound -c set_work_state --set work_state=1 --set work_time=20
  m600ctl build -m heat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, frame, err := flags.encode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m600.HexDump(frame))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// checkFieldNames 拒绝字段表中不存在的字段名
func checkFieldNames(mod m600.Module, cmd m600.Command, fields map[string]int) error {
	s, ok := m600.LookupSchema(m600.DirHostToDevice, mod, cmd)
	if !ok {
		return nil // 由 EncodeCommand 报告无字段表
	}
	known := make(map[string]bool, len(s.Fields))
	names := make([]string, 0, len(s.Fields))
	for _, fd := range s.Fields {
		known[fd.Name] = true
		names = append(names, fd.Name)
	}
	for name := range fields {
		if !known[name] {
			return fmt.Errorf("unknown field %q for %s %s, expected one of: %s", name, mod, cmd, strings.Join(names, ", "))
		}
	}
	return nil
}

// parseSets 解析 name=value，值支持 0x 前缀
func parseSets(sets []string) (map[string]int, error) {
	fields := make(map[string]int, len(sets))
	for _, kv := range sets {
		name, val, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", kv)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		if n < 0 || n > 0xFFFF {
			return nil, fmt.Errorf("value for %s out of range: %d", name, n)
		}
		fields[name] = int(n)
	}
	return fields, nil
}

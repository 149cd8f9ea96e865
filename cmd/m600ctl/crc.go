package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

func newCRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crc <hex>...",
		Short: "Compute the frame CRC-16 over payload bytes",
		Long: `Compute the frame checksum over the given payload bytes (the bytes
between the length byte and the checksum). Arguments are joined, so
"01 3C 00 0A" and 013C 000A are equivalent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := m600.ParseHex(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("parse hex: %w", err)
			}
			crc := m600.CRC16(data)
			fmt.Fprintf(cmd.OutOrStdout(), "crc=0x%04X wire=%02X %02X\n", crc, byte(crc), byte(crc>>8))
			return nil
		},
	}
}

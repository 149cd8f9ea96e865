package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/m600-assistant/internal/serialport"
)

func newPortsCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List local serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.ListPorts()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			if gf.json {
				p := newPrinter(cmd.OutOrStdout(), true)
				return p.enc.Encode(ports)
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tUSB\tVID:PID\tPRODUCT")
			for _, p := range ports {
				id := ""
				if p.IsUSB {
					id = p.VID + ":" + p.PID
				}
				fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", p.Name, p.IsUSB, id, p.Product)
			}
			return tw.Flush()
		},
	}
}

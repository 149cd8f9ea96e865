package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
	"github.com/taoyao-code/m600-assistant/internal/serialport"
)

type sendFlags struct {
	buildFlags
	port     string
	baud     int
	duration time.Duration
}

func newSendCmd(gf *globalFlags) *cobra.Command {
	flags := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one command to a board and print its replies",
		Long: `Open a local serial port, write one command frame and print every
board-to-host record received until --duration elapses or Ctrl-C.`,
		Example: `  m600ctl send --port /dev/ttyUSB0 -m heat
  m600ctl send --port COM3 --baud 115200 -m shockwave -c set_work_state --set work_state=1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.port == "" {
				return fmt.Errorf("required flag --port not set")
			}
			mod, c, frame, err := flags.encode()
			if err != nil {
				return err
			}
			log := gf.logger()
			defer func() { _ = log.Sync() }()

			dev, err := serialport.OpenDevice(flags.port, flags.baud, 50*time.Millisecond)
			if err != nil {
				return err
			}
			defer func() { _ = dev.Close() }()
			_ = dev.ResetInputBuffer()

			if _, err := dev.Write(frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			log.Info("command sent",
				zap.Stringer("module", mod),
				zap.Stringer("command", c),
				zap.String("frame", m600.HexDump(frame)))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, flags.duration)
			defer cancel()

			p := newPrinter(cmd.OutOrStdout(), gf.json)
			codec := m600.NewCodec()
			buf := make([]byte, 256)
			for ctx.Err() == nil {
				n, err := dev.Read(buf)
				if n > 0 {
					recs, derr := codec.FeedBytes(buf[:n])
					if err := p.records(recs); err != nil {
						return err
					}
					p.decodeErrors(derr)
				}
				if err != nil {
					return fmt.Errorf("read: %w", err)
				}
			}
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Info("interrupted")
			}
			return p.stats(codec.Stats())
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.port, "port", "p", "", "Serial port, e.g. /dev/ttyUSB0 or COM3 (required)")
	cmd.Flags().IntVarP(&flags.baud, "baud", "b", 115200, "Baud rate")
	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 2*time.Second, "How long to listen for replies")
	return cmd
}

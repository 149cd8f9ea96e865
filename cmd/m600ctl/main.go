package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalFlags struct {
	logLevel string
	json     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "m600ctl",
		Short: "M600 therapy board protocol tool",
		Long: `m600ctl builds, decodes and replays M600 serial frames and talks to a
board attached to a local serial port.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&gf.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&gf.json, "json", false, "Print records as JSON lines")

	rootCmd.AddCommand(newCRCCmd())
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newDecodeCmd(gf))
	rootCmd.AddCommand(newReplayCmd(gf))
	rootCmd.AddCommand(newPortsCmd(gf))
	rootCmd.AddCommand(newSendCmd(gf))
	return rootCmd
}

func (gf *globalFlags) logger() *zap.Logger {
	return logging.NewConsole(gf.logLevel)
}

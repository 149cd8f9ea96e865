package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

type decodeFlags struct {
	file  string
	stats bool
}

func newDecodeCmd(gf *globalFlags) *cobra.Command {
	flags := &decodeFlags{}
	cmd := &cobra.Command{
		Use:   "decode [hex]...",
		Short: "Decode board-to-host frames from hex",
		Long: `Decode a captured byte stream. The input may hold several frames,
partial frames and line noise; it is demultiplexed the same way the server
does it. Hex comes from the arguments, --file, or stdin when neither is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readHexInput(cmd.InOrStdin(), flags.file, args)
			if err != nil {
				return err
			}
			data, err := m600.ParseHex(text)
			if err != nil {
				return fmt.Errorf("parse hex: %w", err)
			}
			codec := m600.NewCodec()
			p := newPrinter(cmd.OutOrStdout(), gf.json)
			recs, derr := codec.FeedBytes(data)
			if err := p.records(recs); err != nil {
				return err
			}
			p.decodeErrors(derr)
			if flags.stats {
				return p.stats(codec.Stats())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Read hex from file")
	cmd.Flags().BoolVar(&flags.stats, "stats", false, "Print stream statistics")
	return cmd
}

func readHexInput(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

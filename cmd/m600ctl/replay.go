package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

// Capture 录制的串口字节流：按到达顺序的分片
type Capture struct {
	Link   string  `yaml:"link"`
	Baud   int     `yaml:"baud"`
	Chunks []Chunk `yaml:"chunks"`
}

// Chunk 一次读到的数据，Delay 为与上一片的间隔
type Chunk struct {
	Hex   string        `yaml:"hex"`
	Delay time.Duration `yaml:"delay"`
}

// LoadCapture 读取 YAML 录制文件
func LoadCapture(path string) (*Capture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Capture
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse capture %s: %w", path, err)
	}
	if len(c.Chunks) == 0 {
		return nil, fmt.Errorf("capture %s: no chunks", path)
	}
	return &c, nil
}

type replayFlags struct {
	realtime bool
}

func newReplayCmd(gf *globalFlags) *cobra.Command {
	flags := &replayFlags{}
	cmd := &cobra.Command{
		Use:   "replay <capture.yaml>",
		Short: "Replay a recorded byte stream through the decoder",
		Long: `Feed a recorded capture chunk by chunk, exactly as the reads arrived,
and print the decoded records followed by stream statistics.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capture, err := LoadCapture(args[0])
			if err != nil {
				return err
			}
			log := gf.logger()
			defer func() { _ = log.Sync() }()
			log.Info("replaying capture",
				zap.String("link", capture.Link),
				zap.Int("baud", capture.Baud),
				zap.Int("chunks", len(capture.Chunks)))

			p := newPrinter(cmd.OutOrStdout(), gf.json)
			st, err := replay(capture, p, flags.realtime)
			if err != nil {
				return err
			}
			return p.stats(st)
		},
	}
	cmd.Flags().BoolVar(&flags.realtime, "realtime", false, "Honor recorded delays between chunks")
	return cmd
}

func replay(c *Capture, p *printer, realtime bool) (m600.StreamStats, error) {
	codec := m600.NewCodec()
	for i, ch := range c.Chunks {
		data, err := m600.ParseHex(ch.Hex)
		if err != nil {
			return m600.StreamStats{}, fmt.Errorf("chunk %d: parse hex: %w", i, err)
		}
		if realtime && ch.Delay > 0 {
			time.Sleep(ch.Delay)
		}
		recs, derr := codec.FeedBytes(data)
		if err := p.records(recs); err != nil {
			return m600.StreamStats{}, err
		}
		p.decodeErrors(derr)
	}
	return codec.Stats(), nil
}

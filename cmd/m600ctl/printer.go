package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

// printer 输出解码结果：默认单行摘要，--json 时每行一个 JSON 对象
type printer struct {
	w    io.Writer
	json bool
	enc  *json.Encoder
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON, enc: json.NewEncoder(w)}
}

func (p *printer) records(recs []*m600.Record) error {
	for _, r := range recs {
		if p.json {
			if err := p.enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(p.w, "%s  %s\n", r.At.Format("15:04:05.000"), r.Summary())
	}
	return nil
}

// decodeErrors 打印数据区解码失败的帧，不中断处理
func (p *printer) decodeErrors(err error) {
	if err == nil {
		return
	}
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(p.w, "decode error: %s\n", line)
	}
}

func (p *printer) stats(st m600.StreamStats) error {
	if p.json {
		return p.enc.Encode(map[string]any{"stats": st})
	}
	fmt.Fprintf(p.w, "frames=%d crc_errors=%d false_headers=%d noise_bytes=%d discarded=%d\n",
		st.Frames, st.CRCErrors, st.FalseHeaders, st.NoiseBytes, st.DiscardedBytes)
	return nil
}

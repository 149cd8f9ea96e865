package serialport

import (
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Info 串口枚举信息
type Info struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

// ListPorts 枚举本机串口；详细信息不可用时退化为仅名称
func ListPorts() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		out := make([]Info, 0, len(details))
		for _, d := range details {
			out = append(out, Info{
				Name:    d.Name,
				IsUSB:   d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Serial:  d.SerialNumber,
				Product: d.Product,
			})
		}
		return out, nil
	}
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(names))
	for _, n := range names {
		out = append(out, Info{Name: n})
	}
	return out, nil
}

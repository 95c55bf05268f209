package serial

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataBits is the number of data bits per character (5 to 8).
type DataBits int

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

func (d DataBits) valid() bool { return d >= DataBits5 && d <= DataBits8 }

func (d DataBits) String() string { return strconv.Itoa(int(d)) }

func (d DataBits) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DataBits) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil || !DataBits(n).valid() {
		return fmt.Errorf("serial: invalid data bits %q", text)
	}
	*d = DataBits(n)
	return nil
}

// StopBits is the number of stop bits. The zero value is one stop bit.
type StopBits uint8

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

var stopBitsNames = [...]string{"1", "1.5", "2"}

func (s StopBits) String() string {
	if int(s) < len(stopBitsNames) {
		return stopBitsNames[s]
	}
	return "StopBits(" + strconv.Itoa(int(s)) + ")"
}

func (s StopBits) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StopBits) UnmarshalText(text []byte) error {
	v := strings.TrimSpace(string(text))
	for i, name := range stopBitsNames {
		if v == name {
			*s = StopBits(i)
			return nil
		}
	}
	return fmt.Errorf("serial: invalid stop bits %q", text)
}

// Parity is the parity checking mode. The zero value is no parity.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = [...]string{"none", "odd", "even", "mark", "space"}

func (p Parity) String() string {
	if int(p) < len(parityNames) {
		return parityNames[p]
	}
	return "Parity(" + strconv.Itoa(int(p)) + ")"
}

func (p Parity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Parity) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	for i, name := range parityNames {
		if v == name {
			*p = Parity(i)
			return nil
		}
	}
	return fmt.Errorf("serial: invalid parity %q", text)
}

// FlowControl is the flow control mode. The zero value disables it.
type FlowControl uint8

const (
	FlowControlNone FlowControl = iota
	FlowControlSoftware
	FlowControlHardware
)

var flowControlNames = [...]string{"none", "software", "hardware"}

func (f FlowControl) String() string {
	if int(f) < len(flowControlNames) {
		return flowControlNames[f]
	}
	return "FlowControl(" + strconv.Itoa(int(f)) + ")"
}

func (f FlowControl) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FlowControl) UnmarshalText(text []byte) error {
	switch v := strings.ToLower(strings.TrimSpace(string(text))); v {
	case "xonxoff":
		*f = FlowControlSoftware
		return nil
	case "rtscts":
		*f = FlowControlHardware
		return nil
	default:
		for i, name := range flowControlNames {
			if v == name {
				*f = FlowControl(i)
				return nil
			}
		}
	}
	return fmt.Errorf("serial: invalid flow control %q", text)
}

// ClearBuffer selects which kernel queue Clear discards.
type ClearBuffer uint8

const (
	ClearInput ClearBuffer = iota
	ClearOutput
	ClearAll
)

// Configuration is the line configuration of an open port. Timeout is an
// advisory hint for blocking callers; poll operations never time out.
type Configuration struct {
	BaudRate    int
	DataBits    DataBits
	StopBits    StopBits
	Parity      Parity
	FlowControl FlowControl
	Timeout     time.Duration
}

func (c Configuration) String() string {
	return fmt.Sprintf("%d %s%s%s flow=%s", c.BaudRate, c.DataBits, strings.ToUpper(c.Parity.String()[:1]), c.StopBits, c.FlowControl)
}

// Configurator reads and mutates line parameters on a live handle. Every
// setter is all-or-nothing and leaves any pending poll registration alone.
type Configurator interface {
	Configuration() (Configuration, error)
	Apply(Configuration) error
	SetBaudRate(rate int) error
	SetDataBits(DataBits) error
	SetStopBits(StopBits) error
	SetParity(Parity) error
	SetFlowControl(FlowControl) error
	SetTimeout(time.Duration) error
}

// Config holds the parameters for opening a serial port.
type Config struct {
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    DataBits      `yaml:"data_bits"`
	StopBits    StopBits      `yaml:"stop_bits"`
	Parity      Parity        `yaml:"parity"`
	FlowControl FlowControl   `yaml:"flow_control"`
	Timeout     time.Duration `yaml:"timeout"`
	Exclusive   bool          `yaml:"exclusive"`
	Delimiter   string        `yaml:"delimiter"` // line codec delimiter, default "\r\n"
}

// DefaultConfig returns 115200 8N1 without flow control.
func DefaultConfig() Config {
	return Config{
		BaudRate:  115200,
		DataBits:  DataBits8,
		Delimiter: "\r\n",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaudRate == 0 {
		c.BaudRate = def.BaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = def.DataBits
	}
	if c.Delimiter == "" {
		c.Delimiter = def.Delimiter
	}
	return c
}

// Configuration returns the line configuration part of c.
func (c Config) Configuration() Configuration {
	c = c.withDefaults()
	return Configuration{
		BaudRate:    c.BaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		FlowControl: c.FlowControl,
		Timeout:     c.Timeout,
	}
}

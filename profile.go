package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseConfig decodes a YAML port profile on top of DefaultConfig.
// Unknown keys are rejected.
//
//	device: /dev/ttyUSB0
//	baud_rate: 9600
//	data_bits: 7
//	stop_bits: 1.5
//	parity: even
//	flow_control: rtscts
//	timeout: 2s
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse profile: %w", err)
	}
	return cfg.withDefaults(), nil
}

// LoadConfig reads a YAML port profile from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseConfig(data)
}

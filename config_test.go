package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_TextRoundTrip(t *testing.T) {
	var s StopBits
	require.NoError(t, s.UnmarshalText([]byte("1.5")))
	require.Equal(t, StopBitsOnePointFive, s)
	require.Error(t, s.UnmarshalText([]byte("3")))

	var p Parity
	require.NoError(t, p.UnmarshalText([]byte("Even")))
	require.Equal(t, ParityEven, p)
	require.Error(t, p.UnmarshalText([]byte("weird")))

	var f FlowControl
	require.NoError(t, f.UnmarshalText([]byte("rtscts")))
	require.Equal(t, FlowControlHardware, f)
	require.NoError(t, f.UnmarshalText([]byte("xonxoff")))
	require.Equal(t, FlowControlSoftware, f)
	text, err := f.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "software", string(text))

	var d DataBits
	require.NoError(t, d.UnmarshalText([]byte("7")))
	require.Equal(t, DataBits7, d)
	require.Error(t, d.UnmarshalText([]byte("9")))
}

func TestConfig_String(t *testing.T) {
	c := Configuration{BaudRate: 9600, DataBits: DataBits8, Parity: ParityNone, StopBits: StopBitsOne}
	require.Equal(t, "9600 8N1 flow=none", c.String())
	require.Equal(t, "Parity(9)", Parity(9).String())
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{Device: "/dev/ttyS0", Timeout: time.Second}.Configuration()
	require.Equal(t, 115200, c.BaudRate)
	require.Equal(t, DataBits8, c.DataBits)
	require.Equal(t, time.Second, c.Timeout)
}

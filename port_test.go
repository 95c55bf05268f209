//go:build linux

package serial

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openTestPort(t *testing.T, cfg Config) (*Stream, func() (n int, data string)) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cfg.Device = slave.Name()
	s, err := Open(cfg, WithPoller(newTestPoller(t)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, func() (int, string) {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		require.NoError(t, err)
		return n, string(buf[:n])
	}
}

func TestPort_ChatMasterSlave(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	s, err := Open(Config{Device: slave.Name(), BaudRate: 115200, Delimiter: "\n"}, WithPoller(newTestPoller(t)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fromMaster := make(chan string, 1)
	fromSlave := make(chan string, 1)
	errs := make(chan error, 2)

	go NewLineReader(s, "\n").ReadLinesLoop(
		func(line string) { fromMaster <- line },
		func(err error) { errs <- err },
	)
	go func() {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		fromSlave <- string(buf[:n])
	}()

	_, err = master.Write([]byte("ping\n"))
	require.NoError(t, err)
	select {
	case msg := <-fromMaster:
		require.Equal(t, "ping", msg)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for slave to receive from master")
	}

	require.NoError(t, WriteLine(s, "pong", "\n"))
	select {
	case msg := <-fromSlave:
		require.Equal(t, "pong\n", msg)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for master to receive from slave")
	}
}

func TestPort_OpenAppliesConfiguration(t *testing.T) {
	s, readMaster := openTestPort(t, Config{BaudRate: 9600, StopBits: StopBitsTwo, Timeout: time.Second})

	cfg, err := s.Configuration()
	require.NoError(t, err)
	require.Equal(t, 9600, cfg.BaudRate)
	require.Equal(t, DataBits8, cfg.DataBits)
	require.Equal(t, StopBitsTwo, cfg.StopBits)
	require.Equal(t, time.Second, cfg.Timeout)

	require.NoError(t, WriteLine(s, "testline", "\r\n"))
	n, data := readMaster()
	require.Equal(t, 10, n)
	require.Equal(t, "testline\r\n", data)
}

func TestPort_OpenRejectsBadConfiguration(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	_, err = OpenPort(Config{Device: slave.Name(), BaudRate: 12345})
	require.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = OpenPort(Config{Device: "/dev/does-not-exist"})
	require.Error(t, err)
}

func TestPort_StreamConsumesPort(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := OpenPort(Config{Device: slave.Name()})
	require.NoError(t, err)
	require.Equal(t, slave.Name(), port.Name())
	require.NoError(t, port.SetBaudRate(57600))

	s, err := port.Stream(newTestPoller(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = port.Stream(nil)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, port.Close(), "closing a consumed port is a no-op")

	cfg, err := s.Configuration()
	require.NoError(t, err)
	require.Equal(t, 57600, cfg.BaudRate)
}

func TestPort_QueuesAndExclusive(t *testing.T) {
	master, slave := newTestPair(t)

	_, err := master.Write([]byte("abc"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := slave.BytesToRead()
		return err == nil && n == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, slave.Clear(ClearInput))
	n, err := slave.BytesToRead()
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = slave.BytesToWrite()
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, slave.Clear(ClearAll))
	require.ErrorIs(t, slave.Clear(ClearBuffer(9)), ErrUnsupportedValue)

	require.False(t, slave.Exclusive())
	require.NoError(t, slave.SetExclusive(true))
	require.True(t, slave.Exclusive())
	require.NoError(t, slave.SetExclusive(false))
	require.False(t, slave.Exclusive())
}

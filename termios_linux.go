//go:build linux

package serial

import (
	"golang.org/x/sys/unix"
)

// lineControl is the platform capability used to read and write line
// settings and to wait on the output queue. Linux talks termios through
// TCGETS/TCSETS.
type lineControl interface {
	get(fd int) (*unix.Termios, error)
	set(fd int, t *unix.Termios) error
	// outputDrained reports whether the output queue and the transmitter
	// are both empty.
	outputDrained(fd int) (bool, error)
	// drain blocks until everything written has been transmitted (tcdrain).
	drain(fd int) error
	// discardOutput drops queued output, releasing a blocked drain.
	discardOutput(fd int) error
}

// lsrTransmitterEmpty is TIOCSER_TEMT, the "shift register empty" bit
// returned by TIOCSERGETLSR.
const lsrTransmitterEmpty = 0x01

type termiosControl struct{}

func (termiosControl) get(fd int) (*unix.Termios, error) {
	return unix.IoctlGetTermios(fd, unix.TCGETS)
}

func (termiosControl) set(fd int, t *unix.Termios) error {
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func (termiosControl) outputDrained(fd int) (bool, error) {
	queued, err := unix.IoctlGetInt(fd, unix.TIOCOUTQ)
	if err != nil {
		return false, err
	}
	if queued > 0 {
		return false, nil
	}
	// ptys and many USB adapters have no line status register.
	lsr, err := unix.IoctlGetInt(fd, unix.TIOCSERGETLSR)
	if err != nil {
		return true, nil
	}
	return lsr&lsrTransmitterEmpty != 0, nil
}

func (termiosControl) drain(fd int) error {
	for {
		err := unix.IoctlSetInt(fd, unix.TCSBRK, 1)
		if err != unix.EINTR {
			return err
		}
	}
}

func (termiosControl) discardOutput(fd int) error {
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCOFLUSH)
}

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

var dataBitsFlags = map[DataBits]uint32{
	DataBits5: unix.CS5,
	DataBits6: unix.CS6,
	DataBits7: unix.CS7,
	DataBits8: unix.CS8,
}

// makeRaw puts t into raw, byte-at-a-time mode.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

func setBaudRate(t *unix.Termios, rate int) error {
	baud, ok := baudRates[rate]
	if !ok {
		return unsupported("baud rate", rate)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud
	t.Ispeed = baud
	t.Ospeed = baud
	return nil
}

func setDataBits(t *unix.Termios, bits DataBits) error {
	flag, ok := dataBitsFlags[bits]
	if !ok {
		return unsupported("data bits", int(bits))
	}
	t.Cflag &^= unix.CSIZE
	t.Cflag |= flag
	return nil
}

func setStopBits(t *unix.Termios, stop StopBits) error {
	switch stop {
	case StopBitsOne:
		t.Cflag &^= unix.CSTOPB
	case StopBitsTwo:
		t.Cflag |= unix.CSTOPB
	default:
		// termios has no 1.5 stop bit setting.
		return unsupported("stop bits", stop)
	}
	return nil
}

func setParity(t *unix.Termios, parity Parity) error {
	t.Cflag &^= unix.PARENB | unix.PARODD | unix.CMSPAR
	t.Iflag &^= unix.INPCK
	switch parity {
	case ParityNone:
		return nil
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityMark:
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case ParitySpace:
		t.Cflag |= unix.PARENB | unix.CMSPAR
	default:
		return unsupported("parity", parity)
	}
	t.Iflag |= unix.INPCK
	return nil
}

func setFlowControl(t *unix.Termios, flow FlowControl) error {
	t.Cflag &^= unix.CRTSCTS
	t.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	switch flow {
	case FlowControlNone:
	case FlowControlSoftware:
		t.Iflag |= unix.IXON | unix.IXOFF
	case FlowControlHardware:
		t.Cflag |= unix.CRTSCTS
	default:
		return unsupported("flow control", flow)
	}
	return nil
}

// encodeTermios writes every line parameter of c into t. It fails before
// touching t beyond the first rejected field, so callers must work on a copy.
func encodeTermios(t *unix.Termios, c Configuration) error {
	if err := setBaudRate(t, c.BaudRate); err != nil {
		return err
	}
	if err := setDataBits(t, c.DataBits); err != nil {
		return err
	}
	if err := setStopBits(t, c.StopBits); err != nil {
		return err
	}
	if err := setParity(t, c.Parity); err != nil {
		return err
	}
	return setFlowControl(t, c.FlowControl)
}

func decodeTermios(t *unix.Termios) Configuration {
	var c Configuration
	baud := t.Cflag & unix.CBAUD
	for rate, flag := range baudRates {
		if flag == baud {
			c.BaudRate = rate
			break
		}
	}
	size := t.Cflag & unix.CSIZE
	for bits, flag := range dataBitsFlags {
		if flag == size {
			c.DataBits = bits
			break
		}
	}
	if t.Cflag&unix.CSTOPB != 0 {
		c.StopBits = StopBitsTwo
	}
	if t.Cflag&unix.PARENB != 0 {
		odd := t.Cflag&unix.PARODD != 0
		switch {
		case t.Cflag&unix.CMSPAR != 0 && odd:
			c.Parity = ParityMark
		case t.Cflag&unix.CMSPAR != 0:
			c.Parity = ParitySpace
		case odd:
			c.Parity = ParityOdd
		default:
			c.Parity = ParityEven
		}
	}
	switch {
	case t.Cflag&unix.CRTSCTS != 0:
		c.FlowControl = FlowControlHardware
	case t.Iflag&(unix.IXON|unix.IXOFF) != 0:
		c.FlowControl = FlowControlSoftware
	}
	return c
}

// mismatch returns the first parameter of want that the device did not
// take, or nil.
func mismatch(want, got Configuration) *ConfigurationError {
	switch {
	case want.BaudRate != got.BaudRate:
		return unsupported("baud rate", want.BaudRate)
	case want.DataBits != got.DataBits:
		return unsupported("data bits", int(want.DataBits))
	case want.StopBits != got.StopBits:
		return unsupported("stop bits", want.StopBits)
	case want.Parity != got.Parity:
		return unsupported("parity", want.Parity)
	case want.FlowControl != got.FlowControl:
		return unsupported("flow control", want.FlowControl)
	}
	return nil
}

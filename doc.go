// Package serial provides an asynchronous, Linux-first serial port stream
// for high-frequency unbuffered communication with embedded devices.
//
// A Stream never blocks in its poll operations. PollRead, PollWrite and
// PollFlush either complete (Ready) or park the supplied Waker with the
// readiness source in package poller and report Pending; the waker is
// woken once the device may be ready and the caller polls again. Blocking
// adapters (Read, Write, ReadContext, ...) and a line codec are built on
// top of the poll operations.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Edge-triggered epoll readiness with one waker per direction
//   - All-or-nothing line configuration, applied while polls are pending
//   - Line-based reading with custom newline (default: \r\n)
//   - Killability: Close wakes every parked task
//   - PTY pairs for tests and loopback tools
//
// This package does **not** support Windows.
//
// Example usage:
//
//	cfg := serial.DefaultConfig()
//	cfg.Device = "/dev/ttyUSB0"
//	s, err := serial.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	// Start reading lines in a goroutine
//	go serial.NewLineReader(s, cfg.Delimiter).ReadLinesLoop(
//	    func(line string) {
//	        fmt.Println("Received:", line)
//	    },
//	    func(err error) {
//	        log.Println("Read error:", err)
//	    },
//	)
//
//	// Write a command
//	if err := serial.WriteLine(s, "C,START", "\r\n"); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	// ... to stop reading, call s.Close() from another goroutine
package serial

package serial

import (
	"errors"
	"io"
	"strings"
)

// LineReader splits a byte stream into delimiter-terminated lines. It reads
// straight from the underlying reader with its own buffer, without bufio, so
// a line is handed out as soon as its delimiter arrives.
type LineReader struct {
	r     io.Reader
	delim string
	buf   []byte
	line  string
}

// NewLineReader returns a LineReader over r. An empty delim means "\r\n".
func NewLineReader(r io.Reader, delim string) *LineReader {
	if delim == "" {
		delim = DefaultConfig().Delimiter
	}
	return &LineReader{r: r, delim: delim, buf: make([]byte, 4096)}
}

// ReadLine blocks until a full line is available and returns it without
// the delimiter. Bytes after the delimiter are kept for the next call.
func (l *LineReader) ReadLine() (string, error) {
	for {
		if idx := strings.Index(l.line, l.delim); idx >= 0 {
			result := l.line[:idx]
			l.line = l.line[idx+len(l.delim):]
			return result, nil
		}
		n, err := l.r.Read(l.buf)
		l.line += string(l.buf[:n])
		if err != nil {
			if n > 0 && strings.Contains(l.line, l.delim) {
				continue
			}
			return "", err
		}
	}
}

// ReadLinesLoop calls onLine for every line until reading fails. A closed
// stream ends the loop silently; any other error goes to onError.
func (l *LineReader) ReadLinesLoop(onLine func(string), onError func(error)) {
	for {
		line, err := l.ReadLine()
		if err != nil {
			if !errors.Is(err, ErrClosed) && onError != nil {
				onError(err)
			}
			return
		}
		onLine(line)
	}
}

// WriteLine writes line followed by newline as a single write.
func WriteLine(w io.Writer, line, newline string) error {
	_, err := io.WriteString(w, line+newline)
	return err
}

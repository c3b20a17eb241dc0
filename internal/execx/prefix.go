package execx

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter forwards complete lines to W, each prefixed with Prefix.
// A trailing partial line is held until the next newline or Flush.
type PrefixWriter struct {
	W      io.Writer
	Prefix string

	mu  sync.Mutex
	buf []byte
}

func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.buf = append(pw.buf, p...)
	for {
		idx := bytes.IndexByte(pw.buf, '\n')
		if idx < 0 {
			break
		}
		line := pw.buf[:idx]
		if len(line) > 0 {
			if _, err := io.WriteString(pw.W, pw.Prefix+string(line)+"\n"); err != nil {
				return len(p), err
			}
		}
		pw.buf = pw.buf[idx+1:]
	}
	return len(p), nil
}

// Flush writes any buffered partial line.
func (pw *PrefixWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if len(pw.buf) == 0 {
		return nil
	}
	_, err := io.WriteString(pw.W, pw.Prefix+string(pw.buf)+"\n")
	pw.buf = nil
	return err
}

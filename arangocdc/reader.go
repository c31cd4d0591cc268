package arangocdc

import (
	"bufio"
	"io"
)

// lineReader streams an io.Reader (the HTTP response body) as a lazy
// sequence of newline-terminated lines. It buffers at most one scanner
// window (64KiB, grown up to 16MiB for a single long line), so it is
// safe to use against a long-lived chunked response without holding the
// whole body in memory.
//
// Backpressure is inherited from the underlying reader: readLine only
// pulls bytes when called.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	s := bufio.NewScanner(r)
	// Replication log lines can carry large documents; grow past the
	// default 64KiB token limit instead of failing on a wide row.
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 16*1024*1024)
	return &lineReader{scanner: s}
}

// readLine returns the next line with its terminator stripped. It
// returns io.EOF once the stream is exhausted, and wraps any other
// scanning failure as a KindIOOther *Error.
func (r *lineReader) readLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", newError(KindIOOther, err)
	}
	return "", io.EOF
}

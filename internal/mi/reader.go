package mi

import (
	"bufio"
	"io"
)

// Reader turns a byte stream of GDB/MI output into a sequence of parsed
// Records, one per line. It never stops on a malformed line (spec.md §4.1):
// callers observe those as RecordMalformed and decide how to surface them
// (the process supervisor turns them into a synthetic log stream event).
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r (typically a GDB child's stdout pipe) for line-by-line
// MI parsing. The scanner buffer is enlarged because MI can emit very long
// single lines (e.g. `-data-read-memory-bytes` dumps or `-break-list` on a
// project with many breakpoints).
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Next reads and parses the next line. ok is false at end of stream.
func (r *Reader) Next() (Record, bool) {
	if !r.scanner.Scan() {
		return Record{}, false
	}
	return ParseLine(r.scanner.Text()), true
}

// Err returns any non-EOF error encountered by the underlying scanner.
func (r *Reader) Err() error {
	return r.scanner.Err()
}

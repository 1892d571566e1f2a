/*
Package siser frames blocks of data so that many of them can be appended
to a single human-readable file and read back one by one.

Each block is written as a header line followed by data:

	--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n
	${data}\n

Timestamp and name are optional. A newline is added after data that
doesn't end with one.
*/
package siser

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"
)

var hdrPrefix = []byte("--- ")

// TimeToUnixMillisecond converts t into Unix epoch time in milliseconds.
// That's because seconds is not enough precision and nanoseconds is too much.
func TimeToUnixMillisecond(t time.Time) int64 {
	return t.UnixMilli()
}

// TimeFromUnixMillisecond returns time from Unix epoch time in milliseconds.
func TimeFromUnixMillisecond(unixMs int64) time.Time {
	return time.UnixMilli(unixMs)
}

// Writer writes framed blocks to an io.Writer. Safe for concurrent use.
type Writer struct {
	w        io.Writer
	writeBuf bytes.Buffer
	mu       sync.Mutex
}

// NewWriter creates a writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: w,
	}
}

// Write writes d with timestamp t (current time if zero) and optional name.
// Returns number of bytes written, including the header.
func (w *Writer) Write(d []byte, t time.Time, name string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// most writes should be small. if buffer gets big, don't keep it
	// around (unbounded cache is a mem leak)
	if w.writeBuf.Cap() > 100*1024 && len(d) < 50*1024 {
		w.writeBuf = bytes.Buffer{}
	}
	if t.IsZero() {
		t = time.Now()
	}
	d2 := MarshalLine(name, t, d, &w.writeBuf)
	return w.w.Write(d2)
}

// MarshalLine returns framed d. If t is zero, it's not marshalled.
// If wb is not nil, it's re-used and the result is only valid until
// the next use of wb.
func MarshalLine(name string, t time.Time, d []byte, wb *bytes.Buffer) []byte {
	if wb == nil {
		wb = &bytes.Buffer{}
	} else {
		wb.Reset()
	}
	// it's ok to estimate more, estimating less will require an alloc
	wb.Grow(len(hdrPrefix) + len(name) + len(d) + 32)

	wb.Write(hdrPrefix)
	dataLen := len(d)
	wb.WriteString(strconv.Itoa(dataLen))
	if !t.IsZero() {
		wb.WriteByte(' ')
		wb.WriteString(strconv.FormatInt(TimeToUnixMillisecond(t), 10))
	}
	if name != "" {
		wb.WriteByte(' ')
		wb.WriteString(name)
	}
	wb.WriteByte('\n')
	if dataLen > 0 {
		wb.Write(d)
		if d[dataLen-1] != '\n' {
			wb.WriteByte('\n')
		}
	}
	return wb.Bytes()
}

package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reader reads blocks written by Writer or MarshalLine
type Reader struct {
	r *bufio.Reader

	// Data / Name / Timestamp are available after ReadNext
	// and over-written by the next ReadNext
	Data      []byte
	Name      string
	Timestamp time.Time

	err  error
	done bool
}

// NewReader creates a new reader
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// ReadNext reads next block. Returns false at the end of data
// or on error, check Err() to tell which.
func (r *Reader) ReadNext() bool {
	if r.err != nil || r.done {
		return false
	}
	r.Name = ""
	r.Timestamp = time.Time{}

	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
		} else {
			r.err = fmt.Errorf("truncated header '%s'", hdr)
		}
		return false
	}
	if !bytes.HasPrefix(hdr, hdrPrefix) {
		r.err = fmt.Errorf("unexpected header '%s'", hdr)
		return false
	}
	rest := string(hdr[len(hdrPrefix) : len(hdr)-1])

	// ${size} [${timestamp}] [${name}]
	sizeStr, rest, _ := cut(rest)
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 0 {
		r.err = fmt.Errorf("unexpected header '%s'", hdr)
		return false
	}
	if tsStr, name, _ := cut(rest); tsStr != "" {
		if ms, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			r.Timestamp = TimeFromUnixMillisecond(ms)
			rest = name
		}
	}
	r.Name = rest

	r.Data = make([]byte, size)
	if _, err = io.ReadFull(r.r, r.Data); err != nil {
		r.err = err
		return false
	}
	// writer pads data that doesn't end with newline
	if size > 0 && r.Data[size-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			r.err = err
			return false
		}
	}
	return true
}

// Err returns error from last ReadNext. io.EOF is not an error.
func (r *Reader) Err() error {
	return r.err
}

func cut(s string) (string, string, bool) {
	return strings.Cut(s, " ")
}

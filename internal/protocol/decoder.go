package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxBufferSize caps the accumulation buffer of a Decoder.
const DefaultMaxBufferSize = 1024 * 1024 // 1 MB

// ErrBufferOverflow is wrapped by the CLIJSONDecodeError returned when a
// record outgrows the accumulation buffer.
var ErrBufferOverflow = errors.New("JSON record exceeded maximum buffer size")

// Decoder splits a stream of newline-delimited JSON into wire records.
// A record may span several physical lines when the writer flushes partial
// output; lines are accumulated until the buffer holds one complete JSON
// value.
type Decoder struct {
	reader  *bufio.Reader
	buf     []byte
	maxSize int
}

// NewDecoder creates a Decoder reading from r. maxSize <= 0 selects
// DefaultMaxBufferSize.
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &Decoder{
		reader:  bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// Next returns the next complete wire record. It returns io.EOF once the
// stream ends; an incomplete fragment left in the buffer at that point is
// discarded. Any other read error is returned as is.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		line, err := d.readLine()
		if len(line) > 0 {
			record, ok, pushErr := d.Push(line)
			if pushErr != nil {
				return nil, pushErr
			}
			if ok {
				return record, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// Push appends one physical line to the accumulation buffer. When the
// buffer then holds a complete JSON value it is returned with ok set and the
// buffer is reset. Blank lines leave the buffer untouched.
func (d *Decoder) Push(line []byte) (record json.RawMessage, ok bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false, nil
	}

	if len(d.buf)+len(line) > d.maxSize {
		fragment := string(d.buf) + string(line)
		d.Reset()
		return nil, false, NewCLIJSONDecodeError(fragment,
			fmt.Errorf("%w of %d bytes", ErrBufferOverflow, d.maxSize))
	}

	d.buf = append(d.buf, line...)
	if !json.Valid(d.buf) {
		return nil, false, nil
	}

	record = make(json.RawMessage, len(d.buf))
	copy(record, d.buf)
	d.Reset()
	return record, true, nil
}

// Buffered reports the number of bytes accumulated towards an incomplete
// record.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Reset discards any partially accumulated record.
func (d *Decoder) Reset() { d.buf = d.buf[:0] }

// readLine reads up to and including the next newline. Lines longer than
// the bufio buffer are assembled in pieces so the overflow check in Push
// still bounds memory. Reading stops early once a line alone exceeds the
// limit.
func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(d.buf)+len(line) > d.maxSize {
				d.discardLine()
				return line, nil
			}
			continue
		}
		return line, err
	}
}

// discardLine skips the remainder of an oversized line.
func (d *Decoder) discardLine() {
	for {
		_, err := d.reader.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}

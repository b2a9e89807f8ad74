package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/adamancini/launchkit/internal/errs"
)

// Writer encodes protocol primitives onto the output half of a channel.
// Nothing reaches the peer until Flush is called.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w in a buffered protocol writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteBoolean writes a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBoolean(v bool) error {
	var b byte
	if v {
		b = 1
	}
	return w.writeByte(b)
}

// WriteInt writes a big-endian 32-bit integer.
func (w *Writer) WriteInt(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return w.write(buf[:])
}

// WriteVarInt writes v in 7-bit groups, least significant first.
func (w *Writer) WriteVarInt(v int32) error {
	var buf [MaxVarIntLength]byte
	u := uint32(v)
	i := 0
	for u&^0x7F != 0 {
		buf[i] = byte(u&0x7F) | 0x80
		u >>= 7
		i++
	}
	buf[i] = byte(u)
	return w.write(buf[:i+1])
}

// WriteVarLong writes v in 7-bit groups, least significant first.
func (w *Writer) WriteVarLong(v int64) error {
	var buf [MaxVarLongLength]byte
	u := uint64(v)
	i := 0
	for u&^0x7F != 0 {
		buf[i] = byte(u&0x7F) | 0x80
		u >>= 7
		i++
	}
	buf[i] = byte(u)
	return w.write(buf[:i+1])
}

// WriteLength writes a count framed according to limit. Fixed limits write
// nothing but require n to equal their size.
func (w *Writer) WriteLength(n int, limit Limit) error {
	if err := checkLength(n, limit); err != nil {
		return err
	}
	if limit.IsFixed() {
		return nil
	}
	return w.WriteVarInt(int32(n))
}

// WriteByteArray writes b framed according to limit. Length violations are
// reported before anything is buffered.
func (w *Writer) WriteByteArray(b []byte, limit Limit) error {
	if err := w.WriteLength(len(b), limit); err != nil {
		return err
	}
	return w.write(b)
}

// WriteString writes the UTF-8 bytes of s framed according to limit.
func (w *Writer) WriteString(s string, limit Limit) error {
	return w.WriteByteArray([]byte(s), limit)
}

// Flush pushes buffered bytes to the peer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return errs.Transport("flush", err)
	}
	return nil
}

func checkLength(n int, limit Limit) error {
	switch limit.mode {
	case modeFixed:
		if n != limit.n {
			return errs.Malformed("expected exactly %d bytes, got %d", limit.n, n)
		}
	case modeBounded:
		if n > limit.n {
			return errs.Oversized(n, limit.n)
		}
	}
	if n > 1<<31-1 {
		return errs.Oversized(n, 1<<31-1)
	}
	return nil
}

func (w *Writer) writeByte(b byte) error {
	if err := w.w.WriteByte(b); err != nil {
		return errs.Transport("write", err)
	}
	return nil
}

func (w *Writer) write(b []byte) error {
	if _, err := w.w.Write(b); err != nil {
		return errs.Transport("write", err)
	}
	return nil
}

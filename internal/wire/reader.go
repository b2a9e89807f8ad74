package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/adamancini/launchkit/internal/errs"
)

const (
	// MaxVarIntLength is the longest encoding of a 32-bit varint.
	MaxVarIntLength = 5
	// MaxVarLongLength is the longest encoding of a 64-bit varint.
	MaxVarLongLength = 10

	// byte arrays above this size are read incrementally
	directReadSize = 64 * 1024
)

// Reader decodes protocol primitives from the input half of a channel.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r in a buffered protocol reader.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// ReadBoolean reads a single byte that must be 0 or 1.
func (r *Reader) ReadBoolean() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errs.Malformed("invalid boolean state %d", b)
	}
}

// ReadInt reads a big-endian 32-bit integer.
func (r *Reader) ReadInt() (int32, error) {
	var buf [4]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// ReadVarInt reads a 32-bit integer in 7-bit groups, least significant first.
func (r *Reader) ReadVarInt() (int32, error) {
	var result uint32
	for i := 0; i < MaxVarIntLength; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, errs.Malformed("varint is too long")
}

// ReadVarLong reads a 64-bit integer in 7-bit groups, least significant first.
func (r *Reader) ReadVarLong() (int64, error) {
	var result uint64
	for i := 0; i < MaxVarLongLength; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int64(result), nil
		}
	}
	return 0, errs.Malformed("varlong is too long")
}

// ReadLength reads a non-negative count. Fixed limits consume nothing and
// return their size.
func (r *Reader) ReadLength(limit Limit) (int, error) {
	if limit.IsFixed() {
		return limit.n, nil
	}

	n, err := r.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errs.Malformed("negative length %d", n)
	}
	if limit.mode == modeBounded && int(n) > limit.n {
		return 0, errs.Oversized(int(n), limit.n)
	}
	return int(n), nil
}

// ReadByteArray reads a blob framed according to limit.
func (r *Reader) ReadByteArray(limit Limit) ([]byte, error) {
	n, err := r.ReadLength(limit)
	if err != nil {
		return nil, err
	}

	if n <= directReadSize {
		buf := make([]byte, n)
		if err := r.readFull(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	// Grow with the data actually received rather than the declared length.
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r.r, int64(n)); err != nil {
		return nil, readErr(err)
	}
	return buf.Bytes(), nil
}

// ReadString reads a UTF-8 string framed according to limit.
func (r *Reader) ReadString(limit Limit) (string, error) {
	b, err := r.ReadByteArray(limit)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errs.Malformed("string is not valid UTF-8")
	}
	return string(b), nil
}

// ExpectEOF reports an error unless the input is exhausted.
func (r *Reader) ExpectEOF() error {
	_, err := r.r.Peek(1)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return errs.Transport("read", err)
	}
	return errs.Malformed("%d trailing bytes", r.r.Buffered())
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, readErr(err)
	}
	return b, nil
}

func (r *Reader) readFull(buf []byte) error {
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return readErr(err)
	}
	return nil
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.Truncated(err)
	}
	return errs.Transport("read", err)
}

package wire

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/launchkit/internal/errs"
)

func roundTrip(t *testing.T, write func(w *Writer) error) *Reader {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, write(w))
	require.NoError(t, w.Flush())
	return NewReader(&buf)
}

func TestStringRoundTrip(t *testing.T) {
	tests := []string{"", "assets", "клиент", strings.Repeat("a", 255)}

	for _, s := range tests {
		r := roundTrip(t, func(w *Writer) error { return w.WriteString(s, Bounded(255)) })
		got, err := r.ReadString(Bounded(255))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestWriteStringOversizedWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	// 128 two-byte runes: 128 characters but 256 encoded bytes
	s := strings.Repeat("é", 128)
	err := w.WriteString(s, Bounded(255))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrOversizedField)

	require.NoError(t, w.Flush())
	assert.Zero(t, buf.Len())
}

func TestBooleans(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error {
		if err := w.WriteBoolean(true); err != nil {
			return err
		}
		return w.WriteBoolean(false)
	})

	v, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, v)
	v, err = r.ReadBoolean()
	require.NoError(t, err)
	assert.False(t, v)
}

func TestReadBooleanRejectsOtherValues(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{2}))
	_, err := r.ReadBoolean()
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

func TestVarIntEncoding(t *testing.T) {
	tests := []struct {
		value int32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{math.MaxInt32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
		{-1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		require.NoError(t, w.WriteVarInt(tt.value))
		require.NoError(t, w.Flush())
		assert.Equal(t, tt.bytes, buf.Bytes(), "encoding of %d", tt.value)

		got, err := NewReader(&buf).ReadVarInt()
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
	}
}

func TestVarLongRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 1 << 40, math.MaxInt64, -5} {
		r := roundTrip(t, func(w *Writer) error { return w.WriteVarLong(v) })
		got, err := r.ReadVarLong()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReadVarIntTooLong(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	_, err := r.ReadVarInt()
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

func TestIntRoundTrip(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error { return w.WriteInt(-123456) })
	got, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(-123456), got)
}

func TestFixedLimitHasNoPrefix(t *testing.T) {
	sig := []byte{1, 2, 3, 4}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteByteArray(sig, Fixed(4)))
	require.NoError(t, w.Flush())
	assert.Equal(t, sig, buf.Bytes())

	got, err := NewReader(&buf).ReadByteArray(Fixed(4))
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestFixedLimitRejectsWrongLength(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.WriteByteArray([]byte{1, 2, 3}, Fixed(4))
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

func TestReadLengthBounded(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error { return w.WriteVarInt(300) })
	_, err := r.ReadLength(Bounded(255))
	assert.ErrorIs(t, err, errs.ErrOversizedField)
}

func TestReadLengthNegative(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error { return w.WriteVarInt(-1) })
	_, err := r.ReadLength(Unbounded)
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

func TestUnboundedLargePayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 3*directReadSize+17)
	r := roundTrip(t, func(w *Writer) error { return w.WriteByteArray(payload, Unbounded) })

	got, err := r.ReadByteArray(Unbounded)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteVarInt(1<<20))
	require.NoError(t, w.Flush())
	buf.Write([]byte("short"))

	_, err := NewReader(&buf).ReadByteArray(Unbounded)
	assert.ErrorIs(t, err, errs.ErrTruncated)

	_, err = NewReader(bytes.NewReader(nil)).ReadBoolean()
	assert.ErrorIs(t, err, errs.ErrTruncated)
}

func TestExpectEOF(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error { return w.WriteBoolean(true) })
	_, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.NoError(t, r.ExpectEOF())
	assert.NoError(t, NewReader(bytes.NewReader(nil)).ExpectEOF())
}

func TestExpectEOFTrailingBytes(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 0xAA, 0xBB}))
	_, err := r.ReadBoolean()
	require.NoError(t, err)
	err = r.ExpectEOF()
	assert.ErrorIs(t, err, errs.ErrMalformed)
	assert.ErrorContains(t, err, "2 trailing bytes")
}

func TestReadStringInvalidUTF8(t *testing.T) {
	r := roundTrip(t, func(w *Writer) error { return w.WriteByteArray([]byte{0xFF, 0xFE}, Unbounded) })
	_, err := r.ReadString(Unbounded)
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestTransportFailure(t *testing.T) {
	_, err := NewReader(failingReader{}).ReadInt()
	assert.ErrorIs(t, err, errs.ErrTransportFailure)
	assert.NotErrorIs(t, err, errs.ErrTruncated)
}

func TestLimitConstructorsPanicOnNonPositive(t *testing.T) {
	assert.Panics(t, func() { Bounded(0) })
	assert.Panics(t, func() { Fixed(-256) })
	assert.True(t, Unbounded.IsUnbounded())
	assert.Equal(t, "fixed(256)", Fixed(256).String())
}

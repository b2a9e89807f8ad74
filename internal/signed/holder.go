package signed

import (
	"bytes"
	"crypto/rsa"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/wire"
)

// Decoder turns verified canonical bytes into a value.
type Decoder[T any] func(r *wire.Reader) (T, error)

// Holder couples a decoded value with the bytes and signature it came from.
type Holder[T any] struct {
	value T
	raw   []byte
	sig   []byte
}

// New verifies sig over raw and only then decodes raw. Decode is never called
// on bytes that failed verification, and must consume raw completely.
func New[T any](raw, sig []byte, pub *rsa.PublicKey, decode Decoder[T]) (*Holder[T], error) {
	if err := VerifySign(raw, sig, pub); err != nil {
		return nil, err
	}

	r := wire.NewReader(bytes.NewReader(raw))
	value, err := decode(r)
	if err != nil {
		// the bytes are authentic, so this is a protocol bug rather than tampering
		return nil, errs.MalformedErr("signed payload does not decode", err)
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, errs.MalformedErr("signed payload is not canonical", err)
	}

	return &Holder[T]{
		value: value,
		raw:   bytes.Clone(raw),
		sig:   bytes.Clone(sig),
	}, nil
}

// Read reads a [signature][payload] pair from r and verifies it with pub.
func Read[T any](r *wire.Reader, pub *rsa.PublicKey, decode Decoder[T]) (*Holder[T], error) {
	if pub == nil {
		return nil, errs.InvalidSignature("payload", nil)
	}
	sig, err := r.ReadByteArray(wire.Fixed(SignatureSize(pub)))
	if err != nil {
		return nil, err
	}
	raw, err := r.ReadByteArray(wire.Unbounded)
	if err != nil {
		return nil, err
	}
	return New(raw, sig, pub, decode)
}

// Write emits h in the framing Read expects.
func (h *Holder[T]) Write(w *wire.Writer) error {
	if err := w.WriteByteArray(h.sig, wire.Fixed(len(h.sig))); err != nil {
		return err
	}
	return w.WriteByteArray(h.raw, wire.Unbounded)
}

// Value returns the verified value.
func (h *Holder[T]) Value() T { return h.value }

// Bytes returns a copy of the canonical serialized form.
func (h *Holder[T]) Bytes() []byte { return bytes.Clone(h.raw) }

// Signature returns a copy of the signature over Bytes.
func (h *Holder[T]) Signature() []byte { return bytes.Clone(h.sig) }

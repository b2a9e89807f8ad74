package hasher

import (
	"bytes"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/types"
	"github.com/adamancini/launchkit/internal/wire"
)

// MaxNameLength is the cap on one encoded entry name.
const MaxNameLength = 255

// MaxDepth bounds directory nesting accepted from the wire.
const MaxDepth = 64

// Decode reads a HashedDir in its canonical encoding.
func Decode(r *wire.Reader) (*HashedDir, error) {
	return decodeDir(r, 0)
}

func decodeDir(r *wire.Reader, depth int) (*HashedDir, error) {
	if depth > MaxDepth {
		return nil, errs.Malformed("directory nesting exceeds %d", MaxDepth)
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, errs.Malformed("negative entry count %d", count)
	}

	entries := make(map[string]Entry, min(int(count), 1024))
	for range count {
		name, err := r.ReadString(wire.Bounded(MaxNameLength))
		if err != nil {
			return nil, err
		}
		if err := ValidateName(name); err != nil {
			return nil, errs.MalformedErr("unsafe entry name", err)
		}
		if _, dup := entries[name]; dup {
			return nil, errs.Malformed("duplicate entry %q", name)
		}

		code, err := r.ReadVarInt()
		if err != nil {
			return nil, err
		}
		kind, err := types.EntryKindFromCode(code)
		if err != nil {
			return nil, errs.MalformedErr("entry "+name, err)
		}

		switch kind {
		case types.EntryKindDir:
			sub, err := decodeDir(r, depth+1)
			if err != nil {
				return nil, err
			}
			entries[name] = sub
		case types.EntryKindFile:
			f, err := decodeFile(r)
			if err != nil {
				return nil, err
			}
			entries[name] = f
		}
	}

	return NewDir(entries)
}

func decodeFile(r *wire.Reader) (*HashedFile, error) {
	size, err := r.ReadVarLong()
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errs.Malformed("negative file size %d", size)
	}
	hasDigest, err := r.ReadBoolean()
	if err != nil {
		return nil, err
	}
	var digest []byte
	if hasDigest {
		digest, err = r.ReadByteArray(wire.Fixed(DigestSize))
		if err != nil {
			return nil, err
		}
	}
	return &HashedFile{size: size, digest: digest}, nil
}

// Encode writes d in its canonical encoding. It does not flush.
func Encode(w *wire.Writer, d *HashedDir) error {
	if err := w.WriteVarInt(int32(len(d.names))); err != nil {
		return err
	}
	for _, name := range d.names {
		e := d.entries[name]
		if err := w.WriteString(name, wire.Bounded(MaxNameLength)); err != nil {
			return err
		}
		if err := w.WriteVarInt(e.Kind().Code()); err != nil {
			return err
		}

		switch v := e.(type) {
		case *HashedDir:
			if err := Encode(w, v); err != nil {
				return err
			}
		case *HashedFile:
			if err := encodeFile(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeFile(w *wire.Writer, f *HashedFile) error {
	if err := w.WriteVarLong(f.size); err != nil {
		return err
	}
	if err := w.WriteBoolean(f.digest != nil); err != nil {
		return err
	}
	if f.digest == nil {
		return nil
	}
	return w.WriteByteArray(f.digest, wire.Fixed(DigestSize))
}

// Marshal returns the canonical bytes of d, the form that gets signed.
func Marshal(d *HashedDir) ([]byte, error) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	if err := Encode(w, d); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes canonical bytes produced by Marshal.
func Unmarshal(data []byte) (*HashedDir, error) {
	return Decode(wire.NewReader(bytes.NewReader(data)))
}

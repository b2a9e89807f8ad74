// Package signed authenticates server-supplied data against a trusted RSA
// public key. A Holder can only be obtained after its signature verified.
package signed

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/adamancini/launchkit/internal/errs"
)

// SignatureSize returns the fixed length of signatures made with pub's key.
func SignatureSize(pub *rsa.PublicKey) int {
	return pub.Size()
}

// Verify reports whether sig is a valid SHA256withRSA signature of raw.
func Verify(raw, sig []byte, pub *rsa.PublicKey) bool {
	return VerifySign(raw, sig, pub) == nil
}

// VerifySign checks sig over raw and returns a SecurityError when it does not verify.
func VerifySign(raw, sig []byte, pub *rsa.PublicKey) error {
	digest := sha256.Sum256(raw)
	return verifyDigest(digest[:], sig, pub, "payload")
}

// IsValidSign checks sig over the contents of a local file. Failing to read
// the file is an IOError, never a "false".
func IsValidSign(path string, sig []byte, pub *rsa.PublicKey) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, &errs.IOError{Kind: errs.ErrTransportFailure, Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, &errs.IOError{Kind: errs.ErrTransportFailure, Op: "read", Path: path, Err: err}
	}

	return verifyDigest(h.Sum(nil), sig, pub, path) == nil, nil
}

func verifyDigest(digest, sig []byte, pub *rsa.PublicKey, subject string) error {
	if pub == nil {
		return errs.InvalidSignature(subject, fmt.Errorf("no public key configured"))
	}
	if len(sig) != SignatureSize(pub) {
		return errs.InvalidSignature(subject, fmt.Errorf("signature is %d bytes, want %d", len(sig), SignatureSize(pub)))
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, sig); err != nil {
		return errs.InvalidSignature(subject, err)
	}
	return nil
}

// ParsePublicKey decodes a PEM encoded RSA public key in PKIX or PKCS#1 form.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, want RSA", key)
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// LoadPublicKey reads and parses a PEM public key file.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

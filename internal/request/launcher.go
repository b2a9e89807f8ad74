package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/profile"
	"github.com/adamancini/launchkit/internal/signed"
	"github.com/adamancini/launchkit/internal/types"
	"github.com/adamancini/launchkit/internal/wire"
)

// MaxProfiles is a client-side sanity bound on the announced profile count.
// The protocol itself places no limit; the bound only stops a corrupt length
// from driving a huge allocation.
const MaxProfiles = 1 << 16

// LauncherRequest checks the local client binary against the server's
// signature. When they differ the server sends the new binary, otherwise the
// signed client profiles.
type LauncherRequest struct {
	once
	cfg        Config
	binaryPath string
}

// NewLauncherRequest creates a request for the binary at binaryPath.
func NewLauncherRequest(cfg Config, binaryPath string) (*LauncherRequest, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required")
	}
	return &LauncherRequest{cfg: cfg, binaryPath: binaryPath}, nil
}

func (r *LauncherRequest) Type() types.RequestType { return types.RequestTypeLauncher }

// BinaryPath returns the local binary the request checks.
func (r *LauncherRequest) BinaryPath() string { return r.binaryPath }

// IsNativeBinary reports whether the client is packaged as a native .exe.
func (r *LauncherRequest) IsNativeBinary() bool {
	return strings.EqualFold(filepath.Ext(r.binaryPath), ".exe")
}

func (r *LauncherRequest) config() Config { return r.cfg }

func (r *LauncherRequest) prepare() error { return r.begin() }

func (r *LauncherRequest) exchange(ctx context.Context, in *wire.Reader, out *wire.Writer) (*LauncherResult, error) {
	log := zerolog.Ctx(ctx)
	pub := r.cfg.PublicKey

	if err := out.WriteBoolean(r.IsNativeBinary()); err != nil {
		return nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, err
	}

	if err := ReadError(in); err != nil {
		return nil, err
	}

	sig, err := in.ReadByteArray(wire.Fixed(signed.SignatureSize(pub)))
	if err != nil {
		return nil, err
	}

	valid, err := signed.IsValidSign(r.binaryPath, sig, pub)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	shouldUpdate := !valid

	if err := out.WriteBoolean(shouldUpdate); err != nil {
		return nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, err
	}

	if shouldUpdate {
		log.Info().Str("binary", r.binaryPath).Msg("client binary is outdated")

		binary, err := in.ReadByteArray(wire.Unbounded)
		if err != nil {
			return nil, err
		}
		if err := signed.VerifySign(binary, sig, pub); err != nil {
			return nil, fmt.Errorf("launcher binary: %w", err)
		}
		r.cfg.Metrics.Verified(len(binary))
		return &LauncherResult{binary: binary, signature: sig}, nil
	}

	count, err := in.ReadLength(wire.Bounded(MaxProfiles))
	if err != nil {
		return nil, err
	}

	profiles := make([]*signed.Holder[*profile.ClientProfile], 0, count)
	for range count {
		h, err := signed.Read(in, pub, profile.Decode)
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", len(profiles), err)
		}
		r.cfg.Metrics.Verified(len(h.Bytes()))
		profiles = append(profiles, h)
	}

	log.Debug().Int("profiles", len(profiles)).Msg("client binary is up to date")
	return &LauncherResult{signature: sig, profiles: profiles}, nil
}

// LauncherResult is either a verified new binary or the verified profiles.
type LauncherResult struct {
	binary    []byte
	signature []byte
	profiles  []*signed.Holder[*profile.ClientProfile]
}

// UpdateAvailable reports whether the result carries a new binary.
func (r *LauncherResult) UpdateAvailable() bool { return r.binary != nil }

// Binary returns a copy of the new binary, if any.
func (r *LauncherResult) Binary() ([]byte, bool) {
	if r.binary == nil {
		return nil, false
	}
	return bytes.Clone(r.binary), true
}

// Signature returns the signature the server announced for its binary.
func (r *LauncherResult) Signature() []byte { return bytes.Clone(r.signature) }

// Profiles returns the verified profiles. It is empty when a binary was sent.
func (r *LauncherResult) Profiles() []*signed.Holder[*profile.ClientProfile] {
	return r.profiles
}

// ClientProfiles returns the profile values sorted for display.
func (r *LauncherResult) ClientProfiles() []*profile.ClientProfile {
	out := make([]*profile.ClientProfile, 0, len(r.profiles))
	for _, h := range r.profiles {
		out = append(out, h.Value())
	}
	profile.SortProfiles(out)
	return out
}

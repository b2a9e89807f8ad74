package request

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/signed"
	"github.com/adamancini/launchkit/internal/types"
	"github.com/adamancini/launchkit/internal/wire"
)

// MaxQueueSize bounds how many transfers a caller may have in flight for one
// update.
const MaxQueueSize = 128

// UpdateRequest fetches the signed HashedDir of a named server directory.
// The local directory, matcher and digest flag are not sent; they tell the
// caller's transfer logic how to apply the result.
type UpdateRequest struct {
	once
	cfg     Config
	dirName string
	dir     string
	matcher *hasher.Matcher
	digest  bool
}

// NewUpdateRequest validates dirName before any I/O happens.
func NewUpdateRequest(cfg Config, dirName, dir string, matcher *hasher.Matcher, digest bool) (*UpdateRequest, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := hasher.ValidateName(dirName); err != nil {
		return nil, err
	}
	return &UpdateRequest{
		cfg:     cfg,
		dirName: dirName,
		dir:     dir,
		matcher: matcher,
		digest:  digest,
	}, nil
}

func (r *UpdateRequest) Type() types.RequestType { return types.RequestTypeUpdate }

// DirName returns the server directory name.
func (r *UpdateRequest) DirName() string { return r.dirName }

// Dir returns the local directory the update applies to.
func (r *UpdateRequest) Dir() string { return r.dir }

// Matcher returns the path filter, possibly nil.
func (r *UpdateRequest) Matcher() *hasher.Matcher { return r.matcher }

// Digest reports whether file digests should be compared.
func (r *UpdateRequest) Digest() bool { return r.digest }

func (r *UpdateRequest) config() Config { return r.cfg }

// prepare creates the local directory, so it exists even if the exchange fails.
func (r *UpdateRequest) prepare() error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errs.DirectoryCreate(r.dir, err)
	}
	return nil
}

func (r *UpdateRequest) exchange(ctx context.Context, in *wire.Reader, out *wire.Writer) (*signed.Holder[*hasher.HashedDir], error) {
	log := zerolog.Ctx(ctx)

	if err := out.WriteString(r.dirName, wire.Bounded(hasher.MaxNameLength)); err != nil {
		return nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, err
	}

	if err := ReadError(in); err != nil {
		return nil, err
	}

	h, err := signed.Read(in, r.cfg.PublicKey, hasher.Decode)
	if err != nil {
		return nil, err
	}
	r.cfg.Metrics.Verified(len(h.Bytes()))

	log.Debug().
		Str("dir", r.dirName).
		Int("entries", h.Value().Len()).
		Int64("size", h.Value().Size()).
		Msg("received hashed dir")
	return h, nil
}

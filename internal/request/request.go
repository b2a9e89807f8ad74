// Package request executes the typed requests of the update protocol over a
// bidirectional byte channel.
//
// Every request runs the same sequence: local preparation, dial, handshake,
// request payload, server error check, typed result. Signed parts of a result
// are verified against Config.PublicKey before the caller sees them.
package request

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/types"
	"github.com/adamancini/launchkit/internal/wire"
)

// Magic opens every request so that a server can reject foreign clients.
const Magic int32 = 0x4C4B0001

// MaxErrorLength caps the server's error message.
const MaxErrorLength = 4096

// ErrAlreadyExecuted is returned when a request value is executed twice.
var ErrAlreadyExecuted = errors.New("request already executed")

// Channel is the byte stream one request execution owns.
type Channel interface {
	io.ReadWriteCloser
}

// Dialer opens a fresh channel to the server.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context) (Channel, error) { return f(ctx) }

// Config carries what every request needs besides its own parameters.
type Config struct {
	// PublicKey verifies every signed object the server returns.
	PublicKey *rsa.PublicKey
	// Metrics is optional.
	Metrics *metrics.Metrics
}

func (c Config) validate() error {
	if c.PublicKey == nil {
		return fmt.Errorf("request config: public key is required")
	}
	return nil
}

// Request is implemented by the request variants of this package only.
type Request[T any] interface {
	Type() types.RequestType
	config() Config
	prepare() error
	exchange(ctx context.Context, in *wire.Reader, out *wire.Writer) (T, error)
}

// Do executes req once over a channel from d. Cancelling ctx closes the
// channel, which aborts any blocked read or write; no partial result is
// returned.
func Do[T any](ctx context.Context, d Dialer, req Request[T]) (result T, err error) {
	var zero T
	cfg := req.config()
	reqType := req.Type().String()
	log := zerolog.Ctx(ctx).With().Str("request", reqType).Logger()
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		cfg.Metrics.RequestFinished(reqType, outcome(err), elapsed)
		var se *errs.SecurityError
		if errors.As(err, &se) {
			cfg.Metrics.SignatureFailed(se.Subject)
		}
		if err != nil {
			log.Debug().Err(err).Dur("elapsed", elapsed).Msg("request failed")
		} else {
			log.Debug().Dur("elapsed", elapsed).Msg("request finished")
		}
	}()

	if err := req.prepare(); err != nil {
		return zero, err
	}

	log.Debug().Msg("dialing")
	ch, err := d.Dial(ctx)
	if err != nil {
		if !errors.Is(err, errs.ErrTransportFailure) {
			err = errs.Transport("dial", err)
		}
		return zero, err
	}
	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer func() {
		stop()
		_ = ch.Close()
	}()

	in := wire.NewReader(ch)
	out := wire.NewWriter(ch)

	if err := writeHandshake(out, req.Type()); err != nil {
		return zero, cancelled(ctx, err)
	}
	result, err = req.exchange(log.WithContext(ctx), in, out)
	if err != nil {
		return zero, cancelled(ctx, err)
	}
	return result, nil
}

func writeHandshake(out *wire.Writer, t types.RequestType) error {
	if err := out.WriteInt(Magic); err != nil {
		return err
	}
	return out.WriteVarInt(t.Code())
}

// cancelled replaces the error of an exchange aborted by ctx with a
// transport failure carrying the context error.
func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errs.Transport("exchange", ctxErr)
	}
	return err
}

// ReadError reads the server's error marker. An empty message means the
// request was accepted.
func ReadError(in *wire.Reader) error {
	msg, err := in.ReadString(wire.Bounded(MaxErrorLength))
	if err != nil {
		return err
	}
	if msg != "" {
		return errs.ServerRejected(msg)
	}
	return nil
}

// WriteError writes an error marker; an empty msg accepts the request.
func WriteError(out *wire.Writer, msg string) error {
	return out.WriteString(msg, wire.Bounded(MaxErrorLength))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, errs.ErrServerRejected):
		return metrics.OutcomeRejected
	case errors.Is(err, errs.ErrInvalidSignature):
		return metrics.OutcomeSecurity
	case errors.Is(err, errs.ErrTransportFailure), errors.Is(err, errs.ErrDirectoryCreateFailed):
		return metrics.OutcomeTransport
	case errors.Is(err, errs.ErrMalformed), errors.Is(err, errs.ErrTruncated), errors.Is(err, errs.ErrOversizedField):
		return metrics.OutcomeProtocol
	default:
		return metrics.OutcomeInvalid
	}
}

// once refuses a second execution of the same request value.
type once struct {
	started atomic.Bool
}

func (o *once) begin() error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}
	return nil
}

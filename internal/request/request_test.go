package request_test

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/fakeserver"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/profile"
	"github.com/adamancini/launchkit/internal/request"
	"github.com/adamancini/launchkit/internal/signed/signedtest"
	"github.com/adamancini/launchkit/internal/types"
)

func pipeDialer(srv *fakeserver.Server) request.Dialer {
	return request.DialerFunc(func(context.Context) (request.Channel, error) {
		client, server := net.Pipe()
		go func() { _ = srv.Serve(server) }()
		return client, nil
	})
}

func newConfig(t *testing.T) request.Config {
	return request.Config{PublicKey: &signedtest.Key(t).PublicKey, Metrics: metrics.New()}
}

func sampleDir(t *testing.T) *hasher.HashedDir {
	t.Helper()
	f, err := hasher.NewFile(5, nil)
	require.NoError(t, err)
	lib, err := hasher.NewDir(map[string]hasher.Entry{"lib.jar": f})
	require.NoError(t, err)
	d, err := hasher.NewDir(map[string]hasher.Entry{"libraries": lib, "client.jar": f})
	require.NoError(t, err)
	return d
}

func TestUpdateRequest(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetDir("vanilla", sampleDir(t))

	cfg := newConfig(t)
	local := filepath.Join(t.TempDir(), "updates", "vanilla")
	req, err := request.NewUpdateRequest(cfg, "vanilla", local, nil, true)
	require.NoError(t, err)

	h, err := request.Do(context.Background(), pipeDialer(srv), req)
	require.NoError(t, err)
	assert.True(t, sampleDir(t).Equal(h.Value(), nil))
	assert.Equal(t, []fakeserver.Record{{Type: types.RequestTypeUpdate, DirName: "vanilla"}}, srv.Records())
	assert.True(t, req.Digest())
	assert.Equal(t, local, req.Dir())

	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.RequestsTotal.WithLabelValues("update", metrics.OutcomeOK)))
	assert.Positive(t, testutil.ToFloat64(cfg.Metrics.VerifiedBytes))
}

func TestUpdateRequestCreatesDirEvenWhenDialFails(t *testing.T) {
	local := filepath.Join(t.TempDir(), "assets")
	req, err := request.NewUpdateRequest(newConfig(t), "assets", local, nil, false)
	require.NoError(t, err)

	dial := request.DialerFunc(func(context.Context) (request.Channel, error) {
		return nil, errors.New("connection refused")
	})
	_, err = request.Do(context.Background(), dial, req)
	assert.ErrorIs(t, err, errs.ErrTransportFailure)

	info, statErr := os.Stat(local)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestUpdateRequestDirectoryCreateFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	req, err := request.NewUpdateRequest(newConfig(t), "assets", filepath.Join(blocker, "assets"), nil, false)
	require.NoError(t, err)

	dialed := false
	dial := request.DialerFunc(func(context.Context) (request.Channel, error) {
		dialed = true
		return nil, errors.New("unreachable")
	})
	_, err = request.Do(context.Background(), dial, req)
	assert.ErrorIs(t, err, errs.ErrDirectoryCreateFailed)
	assert.False(t, dialed)
}

func TestUpdateRequestInvalidName(t *testing.T) {
	local := filepath.Join(t.TempDir(), "x")
	_, err := request.NewUpdateRequest(newConfig(t), "../escape", local, nil, false)
	assert.ErrorIs(t, err, errs.ErrInvalidName)

	_, statErr := os.Stat(local)
	assert.True(t, os.IsNotExist(statErr), "nothing is created for an invalid name")
}

func TestUpdateRequestRequiresKey(t *testing.T) {
	_, err := request.NewUpdateRequest(request.Config{}, "assets", t.TempDir(), nil, false)
	assert.Error(t, err)
}

func TestUpdateRequestServerRejects(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.RejectDir("secret", "access denied")

	cfg := newConfig(t)
	req, err := request.NewUpdateRequest(cfg, "secret", t.TempDir(), nil, false)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	assert.ErrorIs(t, err, errs.ErrServerRejected)
	msg, ok := errs.ServerMessage(err)
	require.True(t, ok)
	assert.Equal(t, "access denied", msg)
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.RequestsTotal.WithLabelValues("update", metrics.OutcomeRejected)))
}

func TestUpdateRequestUnknownDir(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	req, err := request.NewUpdateRequest(newConfig(t), "missing", t.TempDir(), nil, false)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	assert.ErrorIs(t, err, errs.ErrServerRejected)
}

func TestUpdateRequestTamperedPayload(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetDir("vanilla", sampleDir(t))
	srv.TamperDirs(true)

	cfg := newConfig(t)
	req, err := request.NewUpdateRequest(cfg, "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	h, err := request.Do(context.Background(), pipeDialer(srv), req)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.RequestsTotal.WithLabelValues("update", metrics.OutcomeSecurity)))
}

func TestUpdateRequestWrongKey(t *testing.T) {
	srv := fakeserver.New(signedtest.OtherKey(t))
	srv.SetDir("vanilla", sampleDir(t))

	req, err := request.NewUpdateRequest(newConfig(t), "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	var se *errs.SecurityError
	assert.True(t, errors.As(err, &se))
}

func TestRequestCannotBeReused(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetDir("vanilla", sampleDir(t))

	req, err := request.NewUpdateRequest(newConfig(t), "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	assert.ErrorIs(t, err, request.ErrAlreadyExecuted)
	assert.Len(t, srv.Records(), 1)
}

func TestCancellationClosesChannel(t *testing.T) {
	// the server end reads everything and never answers
	dial := request.DialerFunc(func(context.Context) (request.Channel, error) {
		client, server := net.Pipe()
		go func() {
			_, _ = io.Copy(io.Discard, server)
		}()
		return client, nil
	})

	req, err := request.NewUpdateRequest(newConfig(t), "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h, err := request.Do(ctx, dial, req)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, errs.ErrTransportFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTruncatedResponse(t *testing.T) {
	dial := request.DialerFunc(func(context.Context) (request.Channel, error) {
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, 64)
			_, _ = server.Read(buf)
			_, _ = server.Write([]byte{0x00}) // empty error marker, then nothing
			_ = server.Close()
		}()
		return client, nil
	})

	req, err := request.NewUpdateRequest(newConfig(t), "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	_, err = request.Do(context.Background(), dial, req)
	assert.ErrorIs(t, err, errs.ErrTruncated)
}

func TestUpdateRequestOverTCP(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetDir("vanilla", sampleDir(t))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	req, err := request.NewUpdateRequest(newConfig(t), "vanilla", t.TempDir(), nil, false)
	require.NoError(t, err)

	h, err := request.Do(context.Background(), request.TCPDialer{Address: srv.Addr(), Timeout: time.Second}, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"client.jar", "libraries"}, h.Value().Entries())
}

func TestTCPDialerFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = request.TCPDialer{Address: addr, Timeout: time.Second}.Dial(context.Background())
	assert.ErrorIs(t, err, errs.ErrTransportFailure)
}

func testProfile(title string, index int) *profile.ClientProfile {
	return &profile.ClientProfile{
		Title:     title,
		Version:   "1.0",
		SortIndex: index,
		Dir:       "client-" + title,
		Command:   "java",
	}
}

func writeBinary(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o755))
	return path
}

func TestLauncherRequestUpToDate(t *testing.T) {
	binary := []byte("launcher v2")
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetBinary(binary)
	srv.AddProfile(testProfile("b", 2))
	srv.AddProfile(testProfile("a", 1))

	req, err := request.NewLauncherRequest(newConfig(t), writeBinary(t, "launcher", binary))
	require.NoError(t, err)
	assert.False(t, req.IsNativeBinary())

	res, err := request.Do(context.Background(), pipeDialer(srv), req)
	require.NoError(t, err)
	assert.False(t, res.UpdateAvailable())
	_, ok := res.Binary()
	assert.False(t, ok)
	require.Len(t, res.Profiles(), 2)
	assert.Equal(t, "a", res.ClientProfiles()[0].Title)
	assert.Equal(t, srv.SignatureOf(binary), res.Signature(), "PKCS#1 v1.5 signatures are deterministic")

	assert.Equal(t, []fakeserver.Record{{Type: types.RequestTypeLauncher}}, srv.Records())
}

func TestLauncherRequestOutdated(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetBinary([]byte("launcher v3"))

	req, err := request.NewLauncherRequest(newConfig(t), writeBinary(t, "launcher.exe", []byte("launcher v2")))
	require.NoError(t, err)
	assert.True(t, req.IsNativeBinary())

	res, err := request.Do(context.Background(), pipeDialer(srv), req)
	require.NoError(t, err)
	require.True(t, res.UpdateAvailable())
	b, ok := res.Binary()
	require.True(t, ok)
	assert.Equal(t, []byte("launcher v3"), b)
	assert.Empty(t, res.Profiles())

	assert.Equal(t, []fakeserver.Record{{Type: types.RequestTypeLauncher, Native: true, ShouldUpdate: true}}, srv.Records())
}

func TestLauncherRequestMissingBinaryUpdates(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetBinary([]byte("launcher v3"))

	req, err := request.NewLauncherRequest(newConfig(t), filepath.Join(t.TempDir(), "launcher"))
	require.NoError(t, err)

	res, err := request.Do(context.Background(), pipeDialer(srv), req)
	require.NoError(t, err)
	assert.True(t, res.UpdateAvailable())
}

func TestLauncherRequestTamperedBinary(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.SetBinary([]byte("launcher v3"))
	srv.TamperBinary(true)

	cfg := newConfig(t)
	req, err := request.NewLauncherRequest(cfg, writeBinary(t, "launcher", []byte("launcher v2")))
	require.NoError(t, err)

	res, err := request.Do(context.Background(), pipeDialer(srv), req)
	assert.Nil(t, res)
	var se *errs.SecurityError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.SignatureFailures.WithLabelValues("payload")))
}

func TestLauncherRequestServerRejects(t *testing.T) {
	srv := fakeserver.New(signedtest.Key(t))
	srv.RejectLauncher("maintenance")

	req, err := request.NewLauncherRequest(newConfig(t), writeBinary(t, "launcher", []byte("x")))
	require.NoError(t, err)

	_, err = request.Do(context.Background(), pipeDialer(srv), req)
	msg, ok := errs.ServerMessage(err)
	require.True(t, ok)
	assert.Equal(t, "maintenance", msg)
}

func TestLauncherRequestRequiresPath(t *testing.T) {
	_, err := request.NewLauncherRequest(newConfig(t), "")
	assert.Error(t, err)
}

package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/launchkit/internal/errs"
	"github.com/adamancini/launchkit/internal/fakeserver"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/profile"
	"github.com/adamancini/launchkit/internal/signed"
	"github.com/adamancini/launchkit/internal/signed/signedtest"
	"github.com/adamancini/launchkit/internal/snapshot"
	"github.com/adamancini/launchkit/internal/types"
)

type testEnv struct {
	root       string
	launchfile string
	srv        *fakeserver.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key := signedtest.Key(t)
	srv := fakeserver.New(key)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "server.pem"), signedtest.PublicPEM(t, key), 0o644))

	lf := `version: 1
server:
  address: ` + srv.Addr() + `
  timeout: 2s
public_key: server.pem
launcher:
  binary: launcher
dirs:
  - name: client
    digest: false
snapshots:
  path: cache/snapshots.db
  keep: 2
log:
  level: error
`
	path := filepath.Join(root, "Launchfile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lf), 0o644))
	return &testEnv{root: root, launchfile: path, srv: srv}
}

func (e *testEnv) setFiles(t *testing.T, files map[string]int64) {
	t.Helper()
	entries := make(map[string]hasher.Entry, len(files))
	for name, size := range files {
		f, err := hasher.NewFile(size, nil)
		require.NoError(t, err)
		entries[name] = f
	}
	dir, err := hasher.NewDir(entries)
	require.NoError(t, err)
	e.srv.SetDir("client", dir)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", e.launchfile}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) update(t *testing.T, args ...string) []DirReport {
	t.Helper()
	out, err := e.run(t, append([]string{"update", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var reports []DirReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	return reports
}

func testProfile(title string, index int) *profile.ClientProfile {
	return &profile.ClientProfile{
		Title:         title,
		Version:       "1.0",
		SortIndex:     index,
		ServerAddress: "play.example.com",
		ServerPort:    25565,
		Dir:           "client",
		Command:       "java",
	}
}

func actions(p DirReport) map[string]types.Action {
	m := make(map[string]types.Action)
	for _, it := range p.Plan.Items {
		m[it.Path] = it.Action
	}
	return m
}

func TestUpdateFirstRun(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1, "b.jar": 2})

	reports := env.update(t)
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "client", r.Dir)
	assert.Equal(t, baselineNone, r.Baseline)
	assert.Equal(t, 2, r.Files)
	assert.Equal(t, int64(3), r.Size)
	assert.NotEmpty(t, r.SnapshotID)
	assert.Equal(t, map[string]types.Action{"a.jar": types.ActionFetch, "b.jar": types.ActionFetch}, actions(r))

	// the local directory is created by the request
	assert.DirExists(t, filepath.Join(env.root, "client"))
}

func TestUpdateComparesWithSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1, "b.jar": 2})
	env.update(t)

	env.setFiles(t, map[string]int64{"a.jar": 1, "b.jar": 5, "c.jar": 3})
	r := env.update(t)[0]
	assert.Equal(t, baselineSnapshot, r.Baseline)
	assert.Equal(t, map[string]types.Action{"b.jar": types.ActionReplace, "c.jar": types.ActionFetch}, actions(r))

	// nothing changed since the last saved listing
	r = env.update(t)[0]
	assert.Empty(t, r.Plan.Items)
}

func TestUpdateNoSave(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})

	r := env.update(t, "--no-save")[0]
	assert.Empty(t, r.SnapshotID)

	r = env.update(t)[0]
	assert.Equal(t, baselineNone, r.Baseline)
}

func TestUpdateDeletesStaleFiles(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1, "old.jar": 2})
	env.update(t)

	stale := filepath.Join(env.root, "client", "old.jar")
	require.NoError(t, os.WriteFile(stale, []byte("xx"), 0o644))

	env.setFiles(t, map[string]int64{"a.jar": 1})

	r := env.update(t, "--delete", "--dry-run")[0]
	require.NotNil(t, r.Deleted)
	assert.Equal(t, 1, r.Deleted.Deleted)
	assert.FileExists(t, stale)

	// dry run saved the listing, so restore the old baseline first
	env.setFiles(t, map[string]int64{"a.jar": 1, "old.jar": 2})
	env.update(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})

	r = env.update(t, "--delete", "--yes")[0]
	require.NotNil(t, r.Deleted)
	assert.Equal(t, 1, r.Deleted.Deleted)
	assert.NoFileExists(t, stale)
}

func TestUpdateUnknownDir(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "update", "missing")
	assert.ErrorContains(t, err, "dir not found")
}

func TestUpdateRejectsTamperedListing(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})
	env.srv.TamperDirs(true)

	_, err := env.run(t, "update")
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)
}

func TestUpdateServerRejects(t *testing.T) {
	env := newTestEnv(t)
	env.srv.RejectDir("client", "dir is locked")

	_, err := env.run(t, "update")
	assert.ErrorIs(t, err, errs.ErrServerRejected)
	assert.ErrorContains(t, err, "dir is locked")
}

func TestUpdateTextOutput(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})

	out, err := env.run(t, "update")
	require.NoError(t, err)
	assert.Contains(t, out, "client: 1 files")
	assert.Contains(t, out, "(first update)")
	assert.Contains(t, out, "snapshot saved:")
}

func TestSelfUpdateInstalls(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetBinary([]byte("launcher v2"))
	env.srv.AddProfile(&profile.ClientProfile{Title: "Main", Version: "1.0", Dir: "client", Command: "java"})

	out, err := env.run(t, "self-update", "--check", "-o", "json")
	require.NoError(t, err)
	var status selfUpdateStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.UpdateAvailable)
	assert.False(t, status.Installed)
	assert.NoFileExists(t, filepath.Join(env.root, "launcher"))

	_, err = env.run(t, "profiles")
	assert.ErrorContains(t, err, "launcher update pending")

	_, err = env.run(t, "self-update", "--yes")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(env.root, "launcher"))
	require.NoError(t, err)
	assert.Equal(t, "launcher v2", string(data))

	out, err = env.run(t, "self-update", "-o", "json")
	require.NoError(t, err)
	status = selfUpdateStatus{}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.UpdateAvailable)
	require.Len(t, status.Profiles, 1)
	assert.Equal(t, "Main", status.Profiles[0].Title)
}

func TestSelfUpdateRejectsTamperedBinary(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetBinary([]byte("launcher v2"))
	env.srv.TamperBinary(true)

	_, err := env.run(t, "self-update", "--yes")
	assert.ErrorIs(t, err, errs.ErrInvalidSignature)
	assert.NoFileExists(t, filepath.Join(env.root, "launcher"))
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetBinary([]byte("launcher v2"))
	env.srv.AddProfile(testProfile("Second", 2))
	env.srv.AddProfile(testProfile("First", 1))
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "launcher"), []byte("launcher v2"), 0o755))

	out, err := env.run(t, "profiles")
	require.NoError(t, err)
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "play.example.com:25565")
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
}

func TestSnapshotsCommands(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})
	for range 3 {
		env.update(t)
	}

	// keep: 2 in the Launchfile prunes on every update
	out, err := env.run(t, "snapshots", "list", "-o", "json")
	require.NoError(t, err)
	var infos []snapshot.Info
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)

	out, err = env.run(t, "snapshots", "prune", "--keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 snapshots, kept 1")

	out, err = env.run(t, "snapshots", "list")
	require.NoError(t, err)
	assert.Contains(t, out, infos[0].ID)
	assert.NotContains(t, out, infos[1].ID)

	_, err = env.run(t, "snapshots", "delete", "client", infos[0].ID)
	require.NoError(t, err)

	out, err = env.run(t, "snapshots", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	_, err = env.run(t, "snapshots", "delete", "client", infos[0].ID)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestTamperedSnapshotIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.setFiles(t, map[string]int64{"a.jar": 1})
	env.update(t)

	// replace the cached listing with one signed by another key
	store, err := snapshot.Open(filepath.Join(env.root, "cache", "snapshots.db"), "test", nil)
	require.NoError(t, err)
	raw, err := hasher.Marshal(hasher.EmptyDir())
	require.NoError(t, err)
	other := signedtest.OtherKey(t)
	h, err := signed.New(raw, signedtest.Sign(t, other, raw), &other.PublicKey, hasher.Decode)
	require.NoError(t, err)
	_, err = store.Save("client", h)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	r := env.update(t)[0]
	assert.Equal(t, baselineRejected, r.Baseline)
	assert.Equal(t, map[string]types.Action{"a.jar": types.ActionFetch}, actions(r))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "version", "-o", "json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, appVersion, info.Version)
	assert.NotEmpty(t, info.Platform)
}

func TestCompletion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "launchkit")
}

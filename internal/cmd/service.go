// Package cmd contains the CLI command implementations.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/adamancini/launchkit/internal/config"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/plan"
	"github.com/adamancini/launchkit/internal/request"
	"github.com/adamancini/launchkit/internal/signed"
	"github.com/adamancini/launchkit/internal/snapshot"
	"github.com/adamancini/launchkit/internal/sync"
	"github.com/adamancini/launchkit/internal/update"
)

// DirReport is the outcome of updating one directory.
type DirReport struct {
	Dir string `json:"dir" yaml:"dir"`
	// Baseline is "snapshot" when a cached snapshot was compared, "none" on
	// the first update and "rejected" when the cached snapshot failed
	// verification and was ignored.
	Baseline   string       `json:"baseline" yaml:"baseline"`
	Files      int          `json:"files" yaml:"files"`
	Size       int64        `json:"size" yaml:"size"`
	Plan       *plan.Plan   `json:"plan" yaml:"plan"`
	SnapshotID string       `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	Deleted    *sync.Result `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// String renders the report for text output.
func (r *DirReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d files, %s on server", r.Dir, r.Files, humanize.IBytes(uint64(r.Size)))
	switch r.Baseline {
	case baselineNone:
		b.WriteString(" (first update)")
	case baselineRejected:
		b.WriteString(" (cached snapshot failed verification, ignored)")
	}
	b.WriteString("\n")
	b.WriteString(r.Plan.String())
	if r.SnapshotID != "" {
		fmt.Fprintf(&b, "\nsnapshot saved: %s", r.SnapshotID)
	}
	if r.Deleted != nil {
		fmt.Fprintf(&b, "\ndeleted %d, skipped %d, failed %d", r.Deleted.Deleted, r.Deleted.Skipped, r.Deleted.Failed)
	}
	return b.String()
}

const (
	baselineSnapshot = "snapshot"
	baselineNone     = "none"
	baselineRejected = "rejected"
)

// Service holds what the commands share: the loaded Launchfile, the verified
// server key and the connection to the server.
type Service struct {
	launchfile *config.Launchfile
	cfg        request.Config
	dialer     request.Dialer
	version    string
}

// NewService finds and loads the Launchfile and the server public key.
func NewService(configPath, version string, m *metrics.Metrics) (*Service, error) {
	path, err := config.FindLaunchfile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find Launchfile: %w", err)
	}

	lf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load Launchfile: %w", err)
	}

	pub, err := signed.LoadPublicKey(lf.Resolve(lf.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}

	dialer := request.TCPDialer{Address: lf.Server.Address, Timeout: lf.Server.DialTimeout()}
	return NewServiceWithDeps(lf, request.Config{PublicKey: pub, Metrics: m}, dialer, version), nil
}

// NewServiceWithDeps creates a service with custom dependencies (for testing).
func NewServiceWithDeps(lf *config.Launchfile, cfg request.Config, dialer request.Dialer, version string) *Service {
	return &Service{launchfile: lf, cfg: cfg, dialer: dialer, version: version}
}

// Launchfile returns the loaded configuration.
func (s *Service) Launchfile() *config.Launchfile { return s.launchfile }

// SelectDirs returns the configured dirs named in names, or all of them.
func (s *Service) SelectDirs(names []string) ([]config.Dir, error) {
	if len(names) == 0 {
		return s.launchfile.Dirs, nil
	}
	dirs := make([]config.Dir, 0, len(names))
	for _, name := range names {
		d, err := s.launchfile.GetDir(name)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, *d)
	}
	return dirs, nil
}

// OpenStore opens the snapshot cache.
func (s *Service) OpenStore() (*snapshot.Store, error) {
	path := s.launchfile.Resolve(s.launchfile.Snapshots.Path)
	if path == "" {
		var err error
		if path, err = snapshot.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return snapshot.Open(path, s.version, s.cfg.Metrics)
}

// FetchDir runs an UpdateRequest for one configured directory.
func (s *Service) FetchDir(ctx context.Context, dir config.Dir) (*signed.Holder[*hasher.HashedDir], error) {
	m, err := dir.Matcher()
	if err != nil {
		return nil, err
	}
	local := dir.LocalPath(s.launchfile.BaseDir())
	req, err := request.NewUpdateRequest(s.cfg, dir.Name, local, m, dir.UseDigest())
	if err != nil {
		return nil, err
	}
	return request.Do(ctx, s.dialer, req)
}

// UpdateDir fetches the verified server state of dir, compares it with the
// newest cached snapshot and stores the new state unless save is false.
func (s *Service) UpdateDir(ctx context.Context, store *snapshot.Store, dir config.Dir, save bool) (*DirReport, error) {
	log := zerolog.Ctx(ctx).With().Str("dir", dir.Name).Logger()

	h, err := s.FetchDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir.Name, err)
	}
	remote := h.Value()

	report := &DirReport{Dir: dir.Name, Baseline: baselineSnapshot, Files: len(remote.Files()), Size: remote.Size()}
	baseline, err := store.Latest(dir.Name, s.cfg.PublicKey)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		report.Baseline = baselineNone
	case err != nil:
		// fail closed: an unverifiable cache is treated as absent
		log.Warn().Err(err).Msg("ignoring cached snapshot")
		report.Baseline = baselineRejected
	}

	local := hasher.EmptyDir()
	if baseline != nil {
		local = baseline.Value()
	}
	m, err := dir.Matcher()
	if err != nil {
		return nil, err
	}
	report.Plan = plan.Build(dir.Name, local.Diff(remote, m), local, remote, m)

	if save {
		snap, err := store.Save(dir.Name, h)
		if err != nil {
			return nil, err
		}
		report.SnapshotID = snap.ID

		pruned, err := store.Prune(dir.Name, s.launchfile.KeepCount(snapshot.DefaultKeepCount))
		if err != nil {
			return nil, err
		}
		if len(pruned.Deleted) > 0 {
			log.Debug().Int("pruned", len(pruned.Deleted)).Msg("old snapshots removed")
		}
	}

	log.Debug().Str("baseline", report.Baseline).Int("items", len(report.Plan.Items)).Msg("dir compared")
	return report, nil
}

// ApplyDeletions removes the local copies of files the server dropped.
func (s *Service) ApplyDeletions(ctx context.Context, dir config.Dir, p *plan.Plan, dryRun bool) (*sync.Result, error) {
	deletions := &plan.Plan{DirName: p.DirName, Items: p.Deletions()}
	exec := sync.NewExecutor(nil, sync.Options{
		Concurrency: s.launchfile.Concurrency,
		Delete:      true,
		DryRun:      dryRun,
		Metrics:     s.cfg.Metrics,
	})
	return exec.Execute(ctx, dir.LocalPath(s.launchfile.BaseDir()), deletions)
}

// LauncherPath returns the launcher binary kept current by self-update.
func (s *Service) LauncherPath() (string, error) {
	if s.launchfile.Launcher.Binary != "" {
		return s.launchfile.Resolve(s.launchfile.Launcher.Binary), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get current binary path: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return "", fmt.Errorf("failed to resolve binary path: %w", err)
	}
	return update.Detect().DefaultBinaryPath(exe), nil
}

// CheckLauncher runs a LauncherRequest for the launcher binary.
func (s *Service) CheckLauncher(ctx context.Context) (*request.LauncherResult, string, error) {
	path, err := s.LauncherPath()
	if err != nil {
		return nil, "", err
	}
	req, err := request.NewLauncherRequest(s.cfg, path)
	if err != nil {
		return nil, "", err
	}
	res, err := request.Do(ctx, s.dialer, req)
	if err != nil {
		return nil, "", err
	}
	return res, path, nil
}

// InstallLauncher writes a verified launcher binary to path.
func (s *Service) InstallLauncher(path string, res *request.LauncherResult) error {
	data, ok := res.Binary()
	if !ok {
		return fmt.Errorf("no launcher update available")
	}

	var verify update.VerifyFunc
	if s.launchfile.Launcher.Verify {
		verify = update.VersionCheck
	}
	if err := update.NewBinaryReplacer(path, verify).Install(data); err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}
	return nil
}

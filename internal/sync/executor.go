package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	stdsync "sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adamancini/launchkit/internal/plan"
	"github.com/adamancini/launchkit/internal/progress"
)

// Executor applies plans with a Fetcher.
type Executor struct {
	fetcher Fetcher
	opts    Options
}

// NewExecutor creates an executor. f may be nil for plans without transfers.
func NewExecutor(f Fetcher, opts Options) *Executor {
	return &Executor{fetcher: f, opts: opts}
}

// Execute applies p below root. Deletions run first and sequentially, then
// transfers run with bounded concurrency. A failed item does not stop the
// others; failures are collected in the Result. The returned error is only
// set when ctx ends before the plan is done.
func (e *Executor) Execute(ctx context.Context, root string, p *plan.Plan) (*Result, error) {
	log := zerolog.Ctx(ctx).With().Str("dir", p.DirName).Logger()
	result := &Result{}

	for _, it := range p.Deletions() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		op, err := e.remove(root, it)
		if err != nil {
			log.Warn().Err(err).Str("path", it.Path).Msg("delete failed")
		}
		e.opts.Metrics.FileTransferred(string(it.Action), status(op, err), 0)
		result.add(op, err)
	}

	transfers := p.Transfers()
	if len(transfers) == 0 {
		return result, ctx.Err()
	}
	if e.fetcher == nil {
		return result, fmt.Errorf("plan has %d transfers but no fetcher is configured", len(transfers))
	}

	tracker := progress.NewTracker(p.TotalBytes(), e.opts.Sink)
	var mu stdsync.Mutex
	var g errgroup.Group
	g.SetLimit(e.opts.concurrency())

	for _, it := range transfers {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			op, n, err := e.transfer(ctx, root, p.DirName, it, tracker)
			if err != nil {
				log.Warn().Err(err).Str("path", it.Path).Msg("transfer failed")
			}
			e.opts.Metrics.FileTransferred(string(it.Action), status(op, err), n)

			mu.Lock()
			defer mu.Unlock()
			result.Bytes += n
			result.add(op, err)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(result.Operations, func(a, b Operation) int {
		return strings.Compare(a.Path, b.Path)
	})

	log.Debug().
		Int("fetched", result.Fetched).
		Int("replaced", result.Replaced).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Int64("bytes", result.Bytes).
		Msg("plan applied")
	return result, ctx.Err()
}

func (e *Executor) remove(root string, it plan.Item) (Operation, error) {
	op := Operation{Path: it.Path, Action: it.Action, Size: it.Size}
	if !e.opts.Delete {
		op.Skipped = true
		return op, nil
	}
	if e.opts.DryRun {
		op.Success = true
		return op, nil
	}

	if err := os.RemoveAll(localPath(root, it.Path)); err != nil {
		op.Error = err.Error()
		return op, fmt.Errorf("failed to delete %s: %w", it.Path, err)
	}
	op.Success = true
	return op, nil
}

func (e *Executor) transfer(ctx context.Context, root, dirName string, it plan.Item, tracker *progress.Tracker) (Operation, int64, error) {
	op := Operation{Path: it.Path, Action: it.Action, Size: it.Size}
	if e.opts.DryRun {
		op.Success = true
		return op, 0, nil
	}

	dst := localPath(root, it.Path)
	if it.Dir {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			op.Error = err.Error()
			return op, 0, fmt.Errorf("failed to create %s: %w", it.Path, err)
		}
		op.Success = true
		return op, 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		op.Error = err.Error()
		return op, 0, fmt.Errorf("failed to create parent of %s: %w", it.Path, err)
	}

	counter := tracker.File(it.Path, it.Size)
	ref := Ref{DirName: dirName, Path: it.Path, Size: it.Size}
	if err := e.fetcher.Fetch(ctx, ref, dst, counter); err != nil {
		op.Error = err.Error()
		return op, counter.Count(), fmt.Errorf("failed to fetch %s: %w", it.Path, err)
	}
	op.Success = true
	return op, counter.Count(), nil
}

// localPath maps a forward-slash relative path below root. Plan paths are
// built from validated entry names and cannot escape root.
func localPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

func status(op Operation, err error) string {
	switch {
	case op.Skipped:
		return "skipped"
	case err != nil:
		return "failed"
	default:
		return "ok"
	}
}

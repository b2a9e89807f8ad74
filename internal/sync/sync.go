// Package sync applies an update plan to a local directory. Content transfer
// is delegated to a Fetcher; this package schedules it, tracks progress and
// removes stale files.
package sync

import (
	"context"

	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/progress"
	"github.com/adamancini/launchkit/internal/request"
	"github.com/adamancini/launchkit/internal/types"
)

// DefaultConcurrency is used when Options.Concurrency is zero.
const DefaultConcurrency = 8

// Ref identifies one remote file.
type Ref struct {
	DirName string
	Path    string
	Size    int64
}

// Fetcher downloads one remote file to localPath, reporting bytes to counter.
// The parent directory of localPath exists when Fetch is called.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref, localPath string, counter *progress.FileCounter) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref Ref, localPath string, counter *progress.FileCounter) error

func (f FetcherFunc) Fetch(ctx context.Context, ref Ref, localPath string, counter *progress.FileCounter) error {
	return f(ctx, ref, localPath, counter)
}

// Options configures an Executor.
type Options struct {
	// Concurrency bounds in-flight transfers. It is clamped to
	// request.MaxQueueSize.
	Concurrency int
	// Delete removes local paths the server does not have. Without it they
	// are reported as skipped.
	Delete bool
	// DryRun reports what would happen without touching the filesystem.
	DryRun  bool
	Sink    progress.Sink
	Metrics *metrics.Metrics
}

func (o Options) concurrency() int {
	switch {
	case o.Concurrency <= 0:
		return DefaultConcurrency
	case o.Concurrency > request.MaxQueueSize:
		return request.MaxQueueSize
	default:
		return o.Concurrency
	}
}

// Operation records the outcome of one plan item.
type Operation struct {
	Path    string       `json:"path" yaml:"path"`
	Action  types.Action `json:"action" yaml:"action"`
	Size    int64        `json:"size,omitempty" yaml:"size,omitempty"`
	Success bool         `json:"success" yaml:"success"`
	Skipped bool         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result represents the outcome of applying a plan.
type Result struct {
	Fetched    int         `json:"fetched" yaml:"fetched"`
	Replaced   int         `json:"replaced" yaml:"replaced"`
	Deleted    int         `json:"deleted" yaml:"deleted"`
	Skipped    int         `json:"skipped" yaml:"skipped"`
	Failed     int         `json:"failed" yaml:"failed"`
	Bytes      int64       `json:"bytes" yaml:"bytes"`
	Operations []Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
	Errors     []error     `json:"-" yaml:"-"`
}

// OK reports whether every operation that ran succeeded.
func (r *Result) OK() bool { return r.Failed == 0 }

func (r *Result) add(op Operation, err error) {
	r.Operations = append(r.Operations, op)
	switch {
	case op.Skipped:
		r.Skipped++
	case err != nil:
		r.Failed++
		r.Errors = append(r.Errors, err)
	case op.Action == types.ActionFetch:
		r.Fetched++
	case op.Action == types.ActionReplace:
		r.Replaced++
	case op.Action == types.ActionDelete:
		r.Deleted++
	}
}

// Package progress describes how far a multi-file transfer has come.
package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// UnknownBPS is returned by BPS before a whole second has elapsed.
const UnknownBPS = -1.0

// State is an immutable snapshot of transfer progress. Derived values are
// computed on demand.
type State struct {
	FilePath        string        `json:"file_path"`
	FileDownloaded  int64         `json:"file_downloaded"`
	FileSize        int64         `json:"file_size"`
	TotalDownloaded int64         `json:"total_downloaded"`
	TotalSize       int64         `json:"total_size"`
	Elapsed         time.Duration `json:"elapsed"`
}

// BPS returns the average transfer rate in bytes per second over whole
// elapsed seconds, or UnknownBPS during the first second.
func (s State) BPS() float64 {
	secs := int64(s.Elapsed / time.Second)
	if secs <= 0 {
		return UnknownBPS
	}
	return float64(s.TotalDownloaded) / float64(secs)
}

// EstimatedTime returns the expected time until the whole transfer is done,
// truncated to whole seconds. The second result is false while the rate is
// not yet known or zero.
func (s State) EstimatedTime() (time.Duration, bool) {
	bps := s.BPS()
	if bps <= 0 {
		return 0, false
	}
	seconds := int64(float64(s.TotalRemaining()) / bps)
	return time.Duration(seconds) * time.Second, true
}

func (s State) FileRemaining() int64  { return s.FileSize - s.FileDownloaded }
func (s State) TotalRemaining() int64 { return s.TotalSize - s.TotalDownloaded }

// FileDownloadedPart returns the downloaded fraction of the current file in
// [0, 1], or 0 for an empty file.
func (s State) FileDownloadedPart() float64 { return part(s.FileDownloaded, s.FileSize) }

// TotalDownloadedPart returns the downloaded fraction of the whole transfer.
func (s State) TotalDownloadedPart() float64 { return part(s.TotalDownloaded, s.TotalSize) }

func (s State) FileDownloadedKiB() float64  { return kib(s.FileDownloaded) }
func (s State) FileDownloadedMiB() float64  { return mib(s.FileDownloaded) }
func (s State) FileSizeKiB() float64        { return kib(s.FileSize) }
func (s State) FileSizeMiB() float64        { return mib(s.FileSize) }
func (s State) FileRemainingKiB() float64   { return kib(s.FileRemaining()) }
func (s State) FileRemainingMiB() float64   { return mib(s.FileRemaining()) }
func (s State) TotalDownloadedKiB() float64 { return kib(s.TotalDownloaded) }
func (s State) TotalDownloadedMiB() float64 { return mib(s.TotalDownloaded) }
func (s State) TotalSizeKiB() float64       { return kib(s.TotalSize) }
func (s State) TotalSizeMiB() float64       { return mib(s.TotalSize) }
func (s State) TotalRemainingKiB() float64  { return kib(s.TotalRemaining()) }
func (s State) TotalRemainingMiB() float64  { return mib(s.TotalRemaining()) }

// String renders a one-line status such as
// "assets/a.png 1.0 MiB / 3.0 MiB (33%), 512 KiB/s, ETA 4s".
func (s State) String() string {
	line := fmt.Sprintf("%s / %s (%.0f%%)",
		humanize.IBytes(uint64(max(s.TotalDownloaded, 0))),
		humanize.IBytes(uint64(max(s.TotalSize, 0))),
		s.TotalDownloadedPart()*100)
	if s.FilePath != "" {
		line = s.FilePath + " " + line
	}
	if bps := s.BPS(); bps >= 0 {
		line += fmt.Sprintf(", %s/s", humanize.IBytes(uint64(bps)))
	}
	if eta, ok := s.EstimatedTime(); ok {
		line += ", ETA " + eta.String()
	}
	return line
}

func part(n, size int64) float64 {
	if size == 0 {
		return 0
	}
	return float64(n) / float64(size)
}

func kib(n int64) float64 { return float64(n) / 1024 }
func mib(n int64) float64 { return kib(n) / 1024 }

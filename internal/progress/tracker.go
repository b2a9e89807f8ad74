package progress

import (
	"sync"
	"time"
)

// Tracker aggregates byte counts from concurrently transferred files and
// forwards a State to its sink after every write.
type Tracker struct {
	mu        sync.Mutex
	sink      Sink
	now       func() time.Time
	start     time.Time
	totalSize int64
	total     int64
	last      State
}

// NewTracker starts the clock for a transfer of totalSize bytes. A nil sink
// discards updates.
func NewTracker(totalSize int64, sink Sink) *Tracker {
	return newTracker(totalSize, sink, time.Now)
}

func newTracker(totalSize int64, sink Sink, now func() time.Time) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{
		sink:      sink,
		now:       now,
		start:     now(),
		totalSize: totalSize,
		last:      State{TotalSize: totalSize},
	}
}

// File returns a counter for one file of the transfer.
func (t *Tracker) File(path string, size int64) *FileCounter {
	return &FileCounter{t: t, path: path, size: size}
}

// State returns the most recent snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Total returns the number of bytes counted so far.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Tracker) add(c *FileCounter, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c.n += n
	t.total += n
	t.last = State{
		FilePath:        c.path,
		FileDownloaded:  c.n,
		FileSize:        c.size,
		TotalDownloaded: t.total,
		TotalSize:       t.totalSize,
		Elapsed:         t.now().Sub(t.start),
	}
	t.sink.Update(t.last)
}

// FileCounter is an io.Writer that counts the bytes of one file.
type FileCounter struct {
	t    *Tracker
	path string
	size int64
	n    int64
}

// Write counts p and discards it.
func (c *FileCounter) Write(p []byte) (int, error) {
	c.Add(int64(len(p)))
	return len(p), nil
}

// Add counts n bytes without data.
func (c *FileCounter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.t.add(c, n)
}

// Count returns the bytes counted for this file.
func (c *FileCounter) Count() int64 {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return c.n
}

// Path returns the file's relative path.
func (c *FileCounter) Path() string { return c.path }

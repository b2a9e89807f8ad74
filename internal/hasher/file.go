package hasher

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Scanner produces the HashedDir of a local directory, skipping paths m
// rejects. The walk is supplied by the embedding program.
type Scanner func(path string, m *Matcher) (*HashedDir, error)

// HashFile records one local file. The content is only read when digest is set.
func HashFile(path string, digest bool) (*HashedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if !digest {
		return &HashedFile{size: info.Size()}, nil
	}

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return &HashedFile{size: n, digest: h.Sum(nil)}, nil
}

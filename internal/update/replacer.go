package update

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
)

// BinaryReplacer safely replaces the binary with rollback support
type BinaryReplacer struct {
	currentPath string
	backupPath  string
	stagingPath string
	verify      VerifyFunc
}

// NewBinaryReplacer creates a new binary replacer. verify may be nil, in
// which case the installed file is not executed.
func NewBinaryReplacer(currentPath string, verify VerifyFunc) *BinaryReplacer {
	return &BinaryReplacer{
		currentPath: currentPath,
		backupPath:  currentPath + ".backup",
		stagingPath: currentPath + ".new",
		verify:      verify,
	}
}

// Install writes data as the new binary. The current binary, if any, is kept
// as a backup until the new one is in place and verified.
func (r *BinaryReplacer) Install(data []byte) error {
	// 1. Stage the new binary next to the current one
	if err := os.WriteFile(r.stagingPath, data, 0o755); err != nil {
		_ = os.Remove(r.stagingPath)
		return fmt.Errorf("failed to stage binary: %w", err)
	}

	// 2. Create backup of current binary, if there is one
	hadCurrent := true
	if err := r.createBackup(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(r.stagingPath)
			return fmt.Errorf("failed to create backup: %w", err)
		}
		hadCurrent = false
	}

	// 3. Replace with new binary (atomic rename)
	if err := os.Rename(r.stagingPath, r.currentPath); err != nil {
		_ = os.Remove(r.stagingPath)
		r.undo(hadCurrent)
		return fmt.Errorf("failed to replace binary: %w", err)
	}

	// 4. Set executable permissions
	if err := os.Chmod(r.currentPath, 0o755); err != nil {
		r.undo(hadCurrent)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// 5. Verify new binary works
	if r.verify != nil {
		if err := r.verify(r.currentPath); err != nil {
			r.undo(hadCurrent)
			return fmt.Errorf("new binary verification failed: %w", err)
		}
	}

	// 6. Remove backup on success
	_ = os.Remove(r.backupPath)

	return nil
}

func (r *BinaryReplacer) undo(hadCurrent bool) {
	if hadCurrent {
		_ = r.Rollback()
		return
	}
	_ = os.Remove(r.currentPath)
}

// Rollback restores the backup if update fails
func (r *BinaryReplacer) Rollback() error {
	// 1. Check if backup exists
	if _, err := os.Stat(r.backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", r.backupPath)
	}

	// 2. Restore from backup
	if err := os.Rename(r.backupPath, r.currentPath); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}

	// 3. Set permissions
	if err := os.Chmod(r.currentPath, 0o755); err != nil {
		return fmt.Errorf("failed to set permissions on restored binary: %w", err)
	}

	return nil
}

// createBackup creates a backup of the current binary
func (r *BinaryReplacer) createBackup() error {
	src, err := os.Open(r.currentPath)
	if err != nil {
		return fmt.Errorf("failed to open current binary: %w", err)
	}
	defer func() { _ = src.Close() }()

	srcInfo, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat current binary: %w", err)
	}

	dst, err := os.OpenFile(r.backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(r.backupPath) // Clean up partial backup
		return fmt.Errorf("failed to copy binary to backup: %w", err)
	}

	return nil
}

// VersionCheck verifies a binary works by running --version
func VersionCheck(path string) error {
	cmd := exec.Command(path, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("binary verification failed: %w", err)
	}
	return nil
}

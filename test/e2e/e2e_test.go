package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/adamancini/launchkit/internal/fakeserver"
	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/profile"
	"github.com/adamancini/launchkit/internal/signed/signedtest"
)

const (
	binaryName = "launchkit"
)

var binaryPath string

// TestMain builds the binary before running tests
func TestMain(m *testing.M) {
	cmd := exec.Command("go", "build", "-o", binaryName, "../../cmd/launchkit")
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	binaryPath, _ = filepath.Abs(binaryName)

	code := m.Run()

	os.Remove(binaryName)

	os.Exit(code)
}

// setupTestEnv starts a scripted server on loopback and writes a Launchfile
// and the server's public key into a temporary directory.
func setupTestEnv(t *testing.T) (string, *fakeserver.Server) {
	t.Helper()

	key := signedtest.Key(t)
	srv := fakeserver.New(key)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "server.pem"), signedtest.PublicPEM(t, key), 0644); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	launchfile := `version = 1
public_key = "server.pem"

[server]
address = "` + srv.Addr() + `"
timeout = "2s"

[launcher]
binary = "bin-launcher"

[snapshots]
path = "cache/snapshots.db"

[[dirs]]
name = "client"
digest = false
`
	if err := os.WriteFile(filepath.Join(tmpDir, "Launchfile.toml"), []byte(launchfile), 0644); err != nil {
		t.Fatalf("failed to write Launchfile: %v", err)
	}

	return tmpDir, srv
}

func setFiles(t *testing.T, srv *fakeserver.Server, files map[string]int64) {
	t.Helper()
	entries := make(map[string]hasher.Entry, len(files))
	for name, size := range files {
		f, err := hasher.NewFile(size, nil)
		if err != nil {
			t.Fatalf("NewFile() error = %v", err)
		}
		entries[name] = f
	}
	dir, err := hasher.NewDir(entries)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	srv.SetDir("client", dir)
}

// runLaunchkit executes the launchkit binary against the Launchfile in dir
func runLaunchkit(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--config", filepath.Join(dir, "Launchfile.toml")}, args...)...)
	cmd.Env = append(os.Environ(), "XDG_CACHE_HOME="+filepath.Join(dir, "xdg-cache"))

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// TestUpdateCommand tests the update command functionality
func TestUpdateCommand(t *testing.T) {
	testDir, srv := setupTestEnv(t)
	setFiles(t, srv, map[string]int64{"client.jar": 10, "old.jar": 5})

	t.Run("first update with text output", func(t *testing.T) {
		stdout, stderr, err := runLaunchkit(t, testDir, "update")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, "client: 2 files") {
			t.Errorf("expected file count in output, got: %s", stdout)
		}
		if !strings.Contains(stdout, "(first update)") {
			t.Errorf("expected first update marker, got: %s", stdout)
		}
	})

	t.Run("update with JSON output", func(t *testing.T) {
		setFiles(t, srv, map[string]int64{"client.jar": 12})

		stdout, stderr, err := runLaunchkit(t, testDir, "update", "--output", "json", "--no-save")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}

		var result []map[string]interface{}
		if err := json.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("output is not valid JSON: %v\noutput: %s", err, stdout)
		}
		if len(result) != 1 {
			t.Fatalf("expected one report, got %d", len(result))
		}
		if result[0]["baseline"] != "snapshot" {
			t.Errorf("baseline = %v, want snapshot", result[0]["baseline"])
		}
	})

	t.Run("update with YAML output", func(t *testing.T) {
		stdout, stderr, err := runLaunchkit(t, testDir, "update", "--output", "yaml", "--no-save")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}

		var result []map[string]interface{}
		if err := yaml.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("output is not valid YAML: %v\noutput: %s", err, stdout)
		}
	})

	t.Run("delete stale files", func(t *testing.T) {
		stale := filepath.Join(testDir, "client", "old.jar")
		if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
			t.Fatalf("failed to write stale file: %v", err)
		}

		_, stderr, err := runLaunchkit(t, testDir, "update", "--delete", "--yes")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("expected %s to be deleted", stale)
		}
	})
}

// TestUpdateTamperedListing verifies a listing with a bad signature is refused
func TestUpdateTamperedListing(t *testing.T) {
	testDir, srv := setupTestEnv(t)
	setFiles(t, srv, map[string]int64{"client.jar": 10})
	srv.TamperDirs(true)

	_, stderr, err := runLaunchkit(t, testDir, "update")
	if err == nil {
		t.Fatal("expected update to fail")
	}
	if !strings.Contains(stderr, "signature") {
		t.Errorf("expected signature error, got: %s", stderr)
	}
}

// TestSelfUpdateCommand tests the launcher update flow
func TestSelfUpdateCommand(t *testing.T) {
	testDir, srv := setupTestEnv(t)
	srv.SetBinary([]byte("#!/bin/sh\necho launcher v2\n"))
	srv.AddProfile(&profile.ClientProfile{Title: "Main", Version: "1.0", Dir: "client", Command: "java"})

	t.Run("check reports update", func(t *testing.T) {
		stdout, stderr, err := runLaunchkit(t, testDir, "self-update", "--check")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, "update available") {
			t.Errorf("expected update notice, got: %s", stdout)
		}
	})

	t.Run("install", func(t *testing.T) {
		_, stderr, err := runLaunchkit(t, testDir, "self-update", "--yes")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if _, err := os.Stat(filepath.Join(testDir, "bin-launcher")); err != nil {
			t.Errorf("launcher not installed: %v", err)
		}
	})

	t.Run("profiles after install", func(t *testing.T) {
		stdout, stderr, err := runLaunchkit(t, testDir, "profiles")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, "Main") {
			t.Errorf("expected profile in output, got: %s", stdout)
		}
	})
}

// TestSnapshotsCommand tests listing cached snapshots
func TestSnapshotsCommand(t *testing.T) {
	testDir, srv := setupTestEnv(t)
	setFiles(t, srv, map[string]int64{"client.jar": 10})

	if _, stderr, err := runLaunchkit(t, testDir, "update"); err != nil {
		t.Fatalf("update failed: %v\nstderr: %s", err, stderr)
	}

	stdout, stderr, err := runLaunchkit(t, testDir, "snapshots", "list", "--output", "json")
	if err != nil {
		t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
	}
	var infos []map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &infos); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, stdout)
	}
	if len(infos) != 1 || infos[0]["dir"] != "client" {
		t.Errorf("unexpected snapshots: %v", infos)
	}
}

// TestVersionCommand tests the version command
func TestVersionCommand(t *testing.T) {
	testDir, _ := setupTestEnv(t)

	stdout, stderr, err := runLaunchkit(t, testDir, "version")
	if err != nil {
		t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "launchkit version") {
		t.Errorf("expected version in output, got: %s", stdout)
	}
}

// TestMissingConfig verifies a clear error without a Launchfile
func TestMissingConfig(t *testing.T) {
	cmd := exec.Command(binaryPath, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "update")
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatal("expected failure without Launchfile")
	}
	if !strings.Contains(string(out), "Launchfile") {
		t.Errorf("expected Launchfile error, got: %s", out)
	}
}

//go:build !windows

package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dark")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	return path
}

func TestExtractInstallerSuccess(t *testing.T) {
	tool := fakeTool(t, "exit 0")
	r := NewToolRunner(tool, zap.NewNop())
	dir := t.TempDir()
	err := r.ExtractInstaller(context.Background(), "in.msi", filepath.Join(dir, "out"), filepath.Join(dir, "s.wxs"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
}

func TestExtractInstallerPatchWarningAllowed(t *testing.T) {
	tool := fakeTool(t, "exit 27") // 283 & 0xff wraps on POSIX; use a distinct check below
	r := NewToolRunner(tool, zap.NewNop())
	dir := t.TempDir()
	err := r.ExtractInstaller(context.Background(), "in.msi", filepath.Join(dir, "out"), filepath.Join(dir, "s.wxs"))
	if err == nil {
		t.Fatal("exit 27 is not allow-listed")
	}
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
}

func TestExtractInstallerPermissionRetry(t *testing.T) {
	// Fails with a denial message when asked for script output (-o),
	// succeeds without it.
	script := `
for arg in "$@"; do
	if [ "$arg" = "-o" ]; then
		echo "Access denied" >&2
		exit 1
	fi
done
exit 0`
	tool := fakeTool(t, script)
	r := NewToolRunner(tool, zap.NewNop())
	dir := t.TempDir()
	err := r.ExtractInstaller(context.Background(), "in.msi", filepath.Join(dir, "out"), filepath.Join(dir, "s.wxs"))
	if err != nil {
		t.Fatalf("expected retry without script output to succeed: %v", err)
	}
}

func TestExtractInstallerToolMissing(t *testing.T) {
	r := NewToolRunner(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	err := r.ExtractInstaller(context.Background(), "in.msi", t.TempDir(), "s.wxs")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

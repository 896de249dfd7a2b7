package extract

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSelectPayloadLibraryBySignature(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "installer-output")
	scriptDir := filepath.Join(dir, "installer-script")

	script := `<Wix>
<CustomAction Id="run" BinaryKey="evil.bin" DllEntry="VIPS0033939" />
<CustomAction Id="aux" BinaryKey="benign" DllEntry="SomethingElse" />
</Wix>`
	writeFile(t, filepath.Join(scriptDir, "installer_script.wxs"), script)
	writeFile(t, filepath.Join(outDir, "Binary", "evil.bin"), "payload")
	writeFile(t, filepath.Join(outDir, "Binary", "benign"), "clean")

	s := NewSelector(config.Default().Signatures, zap.NewNop())
	got := s.SelectPayloadLibrary(outDir, scriptDir)
	if len(got) != 1 {
		t.Fatalf("expected exactly one payload, got %v", got)
	}
	if filepath.Base(got[0]) != "evil.bin" {
		t.Fatalf("selected wrong binary: %s", got[0])
	}
}

func TestSelectPayloadLibraryFallbackToDLL(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "installer-output")
	writeFile(t, filepath.Join(outDir, "legacy.dll"), "payload")

	s := NewSelector(config.Default().Signatures, zap.NewNop())
	got := s.SelectPayloadLibrary(outDir, filepath.Join(dir, "no-scripts"))
	if len(got) != 1 || filepath.Base(got[0]) != "legacy.dll" {
		t.Fatalf("fallback failed: %v", got)
	}
}

func TestSelectPayloadLibraryExclusions(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "installer-output")
	writeFile(t, filepath.Join(outDir, "target.dll"), "payload")
	writeFile(t, filepath.Join(outDir, "AICustAct.dll"), "helper")

	s := NewSelector(config.Default().Signatures, zap.NewNop())
	got := s.SelectPayloadLibrary(outDir, filepath.Join(dir, "no-scripts"))
	if len(got) != 1 || filepath.Base(got[0]) != "target.dll" {
		t.Fatalf("exclusion filter failed: %v", got)
	}
}

func TestSelectPayloadLibrarySkipsSystemActionKey(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "installer-output")
	scriptDir := filepath.Join(dir, "installer-script")

	script := `<CustomAction BinaryKey="aicustact.dll" DllEntry="VIPS0033939" />`
	writeFile(t, filepath.Join(scriptDir, "a.wxs"), script)
	writeFile(t, filepath.Join(outDir, "Binary", "aicustact.dll"), "helper")

	s := NewSelector(config.Default().Signatures, zap.NewNop())
	// The system action binary never counts as a signature match; with
	// no other keys the selector falls back to .dll scanning, where the
	// exclusion patterns then drop it too.
	if got := s.SelectPayloadLibrary(outDir, scriptDir); len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
}

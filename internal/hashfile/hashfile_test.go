package hashfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSumBytesKnownVector(t *testing.T) {
	// SHA-256 of "abc".
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SumBytes([]byte("abc")); got != want {
		t.Fatalf("sum mismatch: %s", got)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := FromFile(path, "sample")
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if rec.Size != 3 || rec.Tag != "sample" || rec.Modified == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.SHA256 != SumBytes([]byte("abc")) {
		t.Fatalf("hash mismatch: %s", rec.SHA256)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "nope"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

package scan

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestScanner(min int) *StringScanner {
	return NewStringScanner(min, zap.NewNop())
}

func TestExtractASCIIRuns(t *testing.T) {
	data := []byte("\x00\x01http://a.com/x\x02\xffab\x00longer-string\x03")
	got := newTestScanner(4).Extract(data)
	want := map[string]bool{"http://a.com/x": true, "longer-string": true}
	for _, s := range got {
		if s == "ab" {
			t.Fatal("string below minimum length returned")
		}
	}
	found := 0
	for _, s := range got {
		if want[s] {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("missing expected strings, got %v", got)
	}
}

func TestExtractMinLength(t *testing.T) {
	data := []byte("\x00abc\x00abcd\x00abcde\x00")
	for _, s := range newTestScanner(4).Extract(data) {
		if len(s) < 4 {
			t.Fatalf("string shorter than minimum: %q", s)
		}
	}
}

func TestExtractMinLengthAfterTrim(t *testing.T) {
	// Space is in the alphabet, so " ab " is a 4-byte run; after
	// trimming it is below the minimum and must be dropped.
	data := []byte("\x00 ab \x00 abcd \x00")
	got := newTestScanner(4).Extract(data)
	for _, s := range got {
		if len(s) < 4 {
			t.Fatalf("string shorter than minimum after trim: %q", s)
		}
	}
	if len(got) != 1 || got[0] != "abcd" {
		t.Fatalf("expected only the trimmed run meeting the minimum, got %v", got)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	data := []byte("\x00dupes\x00other\x00dupes\x00")
	got := newTestScanner(4).Extract(data)
	if len(got) != 2 || got[0] != "dupes" || got[1] != "other" {
		t.Fatalf("expected first-occurrence dedupe, got %v", got)
	}
}

func TestExtractUTF16(t *testing.T) {
	// "secret" as UTF-16LE, invisible to the ASCII pass as a single run.
	var data []byte
	for _, r := range "secret" {
		data = append(data, byte(r), 0x00)
	}
	got := newTestScanner(4).Extract(data)
	found := false
	for _, s := range got {
		if s == "secret" {
			found = true
		}
	}
	if !found {
		t.Fatalf("UTF-16 string not extracted, got %v", got)
	}
}

func TestExtractFileWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.dll")
	if err := os.WriteFile(path, []byte("\x00hello-world\x00"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := newTestScanner(4).ExtractFile(path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no strings extracted")
	}
	sidecar := SidecarPath(path)
	if sidecar != path+".strings" {
		t.Fatalf("unexpected sidecar path: %s", sidecar)
	}
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	if string(data) != "hello-world\n" {
		t.Fatalf("unexpected sidecar contents: %q", data)
	}
}

func TestExtractFileMissing(t *testing.T) {
	if _, err := newTestScanner(4).ExtractFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected file-access failure")
	}
}

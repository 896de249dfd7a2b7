package version

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/hexverde/malsift/internal/buildinfo"
)

func TestVersionDefaultOutputStable(t *testing.T) {
	oldVersion, oldCommit, oldDate := buildinfo.Version, buildinfo.Commit, buildinfo.Date
	oldShort, oldJSON := flagShort, flagJSON
	defer func() {
		buildinfo.Version, buildinfo.Commit, buildinfo.Date = oldVersion, oldCommit, oldDate
		flagShort, flagJSON = oldShort, oldJSON
	}()

	buildinfo.Version = ""
	buildinfo.Commit = ""
	buildinfo.Date = ""
	flagShort = false
	flagJSON = false

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	if err := VersionCmd.RunE(VersionCmd, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = w.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "malsift dev\n" {
		t.Fatalf("unexpected output: %q", string(got))
	}
}

func TestVersionJSONOutput(t *testing.T) {
	oldVersion := buildinfo.Version
	oldShort, oldJSON := flagShort, flagJSON
	defer func() {
		buildinfo.Version = oldVersion
		flagShort, flagJSON = oldShort, oldJSON
	}()

	buildinfo.Version = "1.2.3"
	flagShort = false
	flagJSON = true

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	if err := VersionCmd.RunE(VersionCmd, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = w.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded buildDetails
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, got)
	}
	if decoded.Version != "1.2.3" || decoded.Go == "" || decoded.Timestamp == "" {
		t.Fatalf("unexpected fields: %+v", decoded)
	}
}

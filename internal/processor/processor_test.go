package processor

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/pipeline"
)

type stubStage struct {
	id      pipeline.StageID
	succeed bool
}

func (s *stubStage) ID() pipeline.StageID        { return s.id }
func (s *stubStage) Gate(*pipeline.Context) bool { return true }
func (s *stubStage) FaultTolerant() bool         { return false }

func (s *stubStage) Execute(*pipeline.Context) pipeline.StageResult {
	now := time.Now()
	r := pipeline.StageResult{
		Stage:     s.id,
		StartTime: now,
		EndTime:   now,
		Success:   s.succeed,
	}
	if s.succeed {
		r.Status = pipeline.StatusCompleted
	} else {
		r.Status = pipeline.StatusFailed
		r.ErrorMessage = "stub failure"
	}
	return r
}

func newTestProcessor(t *testing.T, stages ...pipeline.Stage) (*Processor, string) {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.TempDir = filepath.Join(base, "temp")
	cfg.OutputDir = filepath.Join(base, "output")
	p := New(cfg, zap.NewNop())
	p.Stages = stages
	p.Out = io.Discard

	sample := filepath.Join(base, "sample.zip")
	if err := os.WriteFile(sample, []byte("sample-bytes"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return p, sample
}

func sessionDirs(t *testing.T, tempDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(tempDir, e.Name()))
		}
	}
	return dirs
}

func TestProcessCleansUpOnFullSuccess(t *testing.T) {
	p, sample := newTestProcessor(t, &stubStage{id: "a", succeed: true})
	meta, err := p.Process(sample, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if dirs := sessionDirs(t, p.cfg.TempDir); len(dirs) != 0 {
		t.Fatalf("session directory survived a fully successful run: %v", dirs)
	}
	if _, err := os.Stat(filepath.Join(p.cfg.OutputDir, meta.SampleName+"_analysis.json")); err != nil {
		t.Fatalf("json record missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.cfg.OutputDir, meta.SampleName+"_analysis.yaml")); err != nil {
		t.Fatalf("yaml record missing: %v", err)
	}
}

func TestProcessRetainsOnFailure(t *testing.T) {
	p, sample := newTestProcessor(t,
		&stubStage{id: "a", succeed: true},
		&stubStage{id: "b", succeed: false})
	if _, err := p.Process(sample, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	dirs := sessionDirs(t, p.cfg.TempDir)
	if len(dirs) != 1 {
		t.Fatalf("expected retained session directory, got %v", dirs)
	}
	marker := filepath.Join(dirs[0], ".debug")
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("retention marker missing: %v", err)
	}
	if want := "Analysis failed: 1/2 stages successful"; !strings.Contains(string(data), want) {
		t.Fatalf("marker missing reason %q:\n%s", want, data)
	}
}

func TestProcessRetainsOnKeepTemp(t *testing.T) {
	p, sample := newTestProcessor(t, &stubStage{id: "a", succeed: true})
	if _, err := p.Process(sample, true); err != nil {
		t.Fatalf("process: %v", err)
	}
	dirs := sessionDirs(t, p.cfg.TempDir)
	if len(dirs) != 1 {
		t.Fatalf("expected retained session directory, got %v", dirs)
	}
	if _, err := os.Stat(filepath.Join(dirs[0], ".debug")); err != nil {
		t.Fatalf("retention marker missing: %v", err)
	}
}

type panicStage struct{}

func (s *panicStage) ID() pipeline.StageID        { return "panic" }
func (s *panicStage) Gate(*pipeline.Context) bool { return true }
func (s *panicStage) FaultTolerant() bool         { return false }

func (s *panicStage) Execute(*pipeline.Context) pipeline.StageResult {
	panic("stage blew up")
}

func TestProcessRetainsOnPanic(t *testing.T) {
	p, sample := newTestProcessor(t, &panicStage{})

	recovered := func() (r any) {
		defer func() { r = recover() }()
		_, _ = p.Process(sample, false)
		return nil
	}()
	if recovered == nil {
		t.Fatal("expected the panic to propagate")
	}

	dirs := sessionDirs(t, p.cfg.TempDir)
	if len(dirs) != 1 {
		t.Fatalf("expected retained session directory, got %v", dirs)
	}
	data, err := os.ReadFile(filepath.Join(dirs[0], ".debug"))
	if err != nil {
		t.Fatalf("retention marker missing after panic: %v", err)
	}
	if !strings.Contains(string(data), "stage blew up") {
		t.Fatalf("marker missing panic reason:\n%s", data)
	}
}

func TestProcessMissingSample(t *testing.T) {
	p, _ := newTestProcessor(t, &stubStage{id: "a", succeed: true})
	if _, err := p.Process(filepath.Join(t.TempDir(), "nope.zip"), false); err == nil {
		t.Fatal("expected error for missing sample")
	}
}

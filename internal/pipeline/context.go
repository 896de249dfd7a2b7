package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/hashfile"
	"github.com/hexverde/malsift/internal/session"
)

// ExtractedFile summarizes one file recovered from the sample
// container.
type ExtractedFile struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// InstallerInfo describes the installer located inside the container.
type InstallerInfo struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	OutputDir string `json:"output_dir"`
	ScriptDir string `json:"script_dir"`
}

// PayloadInfo describes the isolated payload library.
type PayloadInfo struct {
	Name         string `json:"name"`
	OriginalPath string `json:"original_path"`
	CopiedPath   string `json:"copied_path"`
	Size         int64  `json:"size"`
	SHA256       string `json:"sha256"`
}

// NetworkStatus records the secondary-payload download outcome.
type NetworkStatus struct {
	DownloadAttempted bool `json:"download_attempted"`
	DownloadSucceeded bool `json:"download_succeeded"`
}

// RunMetadata is the aggregate record for one sample, mutated
// incrementally by each stage and finalized exactly once.
type RunMetadata struct {
	SamplePath           string
	SampleName           string
	SampleSize           int64
	SampleSHA256         string
	SessionID            string
	AnalysisStart        time.Time
	AnalysisEnd          time.Time
	TotalDurationSeconds float64

	ExtractedFiles []ExtractedFile
	FileRecords    map[string]hashfile.Record
	Installer      *InstallerInfo
	Payload        *PayloadInfo

	StringsCount int
	URLsFound    []string
	C2URL        string
	DownloadURL  string
	Network      NetworkStatus

	Stages []StageResult

	ThreatLevel string
	Family      string
	Summary     string
}

// Dirs is the working-directory layout created by the initialize
// stage under the session directory.
type Dirs struct {
	Work            string
	Container       string
	InstallerOutput string
	InstallerScript string
	Payload         string
	Secondary       string
	Executable      string
}

// Context aggregates one run's session, accumulated stage results,
// and running metadata.
type Context struct {
	SamplePath string
	Session    *session.Session
	Cfg        config.Config
	Dirs       Dirs
	Meta       *RunMetadata

	log *zap.Logger
}

// NewContext creates the run context and computes the sample hash.
// This is the only place a failure aborts the run before any stage
// executes.
func NewContext(samplePath string, sess *session.Session, cfg config.Config, log *zap.Logger) (*Context, error) {
	fi, err := os.Stat(samplePath)
	if err != nil {
		return nil, fmt.Errorf("sample file not found: %s: %w", samplePath, err)
	}
	rec, err := hashfile.FromFile(samplePath, "sample")
	if err != nil {
		return nil, fmt.Errorf("hash sample: %w", err)
	}
	sessionDir, err := sess.Dir()
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		SamplePath: samplePath,
		Session:    sess,
		Cfg:        cfg,
		Meta: &RunMetadata{
			SamplePath:    samplePath,
			SampleName:    filepath.Base(samplePath),
			SampleSize:    fi.Size(),
			SampleSHA256:  rec.SHA256,
			SessionID:     sess.ID,
			AnalysisStart: time.Now(),
			FileRecords:   map[string]hashfile.Record{"sample": rec},
		},
		log: log,
	}

	log.Info("session initialized",
		zap.String("session", sess.ID),
		zap.String("dir", sessionDir),
		zap.String("sample", samplePath),
		zap.Int64("size", fi.Size()),
		zap.String("sha256", rec.SHA256))
	return ctx, nil
}

// AddResult appends a stage result; results are append-only and
// monotonic in stage order.
func (c *Context) AddResult(r StageResult) {
	c.Meta.Stages = append(c.Meta.Stages, r)
}

// Result returns the recorded result for a stage, or nil if the stage
// has not executed.
func (c *Context) Result(id StageID) *StageResult {
	for i := range c.Meta.Stages {
		if c.Meta.Stages[i].Stage == id {
			return &c.Meta.Stages[i]
		}
	}
	return nil
}

// Succeeded reports whether a stage executed and succeeded.
func (c *Context) Succeeded(id StageID) bool {
	r := c.Result(id)
	return r != nil && r.Success
}

// RecordFile hashes path once under the given label. A label already
// recorded is never recomputed within a run.
func (c *Context) RecordFile(label, path, tag string) (hashfile.Record, error) {
	if rec, ok := c.Meta.FileRecords[label]; ok {
		return rec, nil
	}
	rec, err := hashfile.FromFile(path, tag)
	if err != nil {
		return hashfile.Record{}, err
	}
	c.Meta.FileRecords[label] = rec
	return rec, nil
}

// MarkCompleted closes the run's timing. Called exactly once.
func (c *Context) MarkCompleted() {
	c.Meta.AnalysisEnd = time.Now()
	c.Meta.TotalDurationSeconds = c.Meta.AnalysisEnd.Sub(c.Meta.AnalysisStart).Seconds()
}

package pipeline

import (
	gocontext "context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/cache"
	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/extract"
	"github.com/hexverde/malsift/internal/payload"
	"github.com/hexverde/malsift/internal/scan"
)

// Toolkit bundles the components the concrete stages depend on. Built
// once per processor from the immutable configuration.
type Toolkit struct {
	Cfg        config.Config
	Archiver   *extract.Archiver
	Tool       *extract.ToolRunner
	Selector   *extract.Selector
	Scanner    *scan.StringScanner
	Classifier *scan.Classifier
	Fetcher    *payload.Fetcher
	Decoder    *payload.Decoder
	Cache      *cache.Cache
	Log        *zap.Logger
}

// NewToolkit wires the components from the configuration.
func NewToolkit(cfg config.Config, log *zap.Logger) *Toolkit {
	return &Toolkit{
		Cfg:        cfg,
		Archiver:   extract.NewArchiver(cfg.ArchivePassword, log),
		Tool:       extract.NewToolRunner(cfg.ToolPath, log),
		Selector:   extract.NewSelector(cfg.Signatures, log),
		Scanner:    scan.NewStringScanner(scan.DefaultMinLength, log),
		Classifier: scan.NewClassifier(cfg.Signatures, cfg.ClassifyInline, log),
		Fetcher:    payload.NewFetcher(cfg.UserAgent, log),
		Decoder:    payload.NewDecoder(log),
		Cache:      cache.New(cfg.CacheDir, log),
		Log:        log,
	}
}

// DefaultStages returns the fixed stage order for a full analysis run.
func DefaultStages(tk *Toolkit) []Stage {
	return []Stage{
		&initializeStage{tk},
		&extractContainerStage{tk},
		&extractInstallerStage{tk},
		&extractPayloadLibraryStage{tk},
		&scanStringsStage{tk},
		&classifyURLsStage{tk},
		&fetchSecondaryPayloadStage{tk},
		&finalizeStage{tk},
	}
}

type initializeStage struct{ tk *Toolkit }

func (s *initializeStage) ID() StageID         { return StageInitialize }
func (s *initializeStage) Gate(*Context) bool  { return true }
func (s *initializeStage) FaultTolerant() bool { return false }

func (s *initializeStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	sessionDir, err := ctx.Session.Dir()
	if err != nil {
		return failed(StageInitialize, start, err)
	}
	work := filepath.Join(sessionDir, "processing")
	dirs := Dirs{
		Work:            work,
		Container:       filepath.Join(work, "container-extraction"),
		InstallerOutput: filepath.Join(work, "installer-output"),
		InstallerScript: filepath.Join(work, "installer-script"),
		Payload:         filepath.Join(work, "payload-library"),
		Secondary:       filepath.Join(work, "secondary-payload"),
		Executable:      filepath.Join(work, "executable-output"),
	}
	for _, dir := range []string{dirs.Work, dirs.Container, dirs.InstallerOutput,
		dirs.InstallerScript, dirs.Payload, dirs.Secondary, dirs.Executable} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return failed(StageInitialize, start, err)
		}
	}
	ctx.Dirs = dirs
	return completed(StageInitialize, start, map[string]any{
		"sample_hash": ctx.Meta.SampleSHA256,
		"work_dir":    dirs.Work,
		"session_id":  ctx.Session.ID,
	}, nil)
}

type extractContainerStage struct{ tk *Toolkit }

func (s *extractContainerStage) ID() StageID         { return StageExtractContainer }
func (s *extractContainerStage) FaultTolerant() bool { return false }

func (s *extractContainerStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageInitialize)
}

func (s *extractContainerStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	if err := s.tk.Archiver.ExtractArchive(ctx.SamplePath, ctx.Dirs.Container); err != nil {
		return failed(StageExtractContainer, start, err)
	}

	var files []ExtractedFile
	walkErr := filepath.WalkDir(ctx.Dirs.Container, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rec, err := ctx.RecordFile("extracted_"+d.Name(), path, "extracted")
		if err != nil {
			return err
		}
		files = append(files, ExtractedFile{
			Name:   d.Name(),
			Path:   path,
			Size:   rec.Size,
			SHA256: rec.SHA256,
		})
		return nil
	})
	if walkErr != nil {
		return failed(StageExtractContainer, start, walkErr)
	}
	ctx.Meta.ExtractedFiles = files
	return completed(StageExtractContainer, start, map[string]any{
		"extracted_files_count": len(files),
		"extract_dir":           ctx.Dirs.Container,
	}, []string{ctx.Dirs.Container})
}

type extractInstallerStage struct{ tk *Toolkit }

func (s *extractInstallerStage) ID() StageID         { return StageExtractInstaller }
func (s *extractInstallerStage) FaultTolerant() bool { return false }

func (s *extractInstallerStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageExtractContainer)
}

func (s *extractInstallerStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	installers := extract.FindByExtension(ctx.Dirs.Container, "msi")
	if len(installers) == 0 {
		return failed(StageExtractInstaller, start,
			fmt.Errorf("no installer found in extracted container"))
	}
	installer := installers[0]

	scriptFile := filepath.Join(ctx.Dirs.InstallerScript, "installer_script.wxs")
	if err := s.tk.Tool.ExtractInstaller(gocontext.Background(), installer, ctx.Dirs.InstallerOutput, scriptFile); err != nil {
		return failed(StageExtractInstaller, start, err)
	}

	rec, err := ctx.RecordFile("installer", installer, "installer")
	if err != nil {
		return failed(StageExtractInstaller, start, err)
	}
	ctx.Meta.Installer = &InstallerInfo{
		Path:      installer,
		Size:      rec.Size,
		SHA256:    rec.SHA256,
		OutputDir: ctx.Dirs.InstallerOutput,
		ScriptDir: ctx.Dirs.InstallerScript,
	}
	return completed(StageExtractInstaller, start, map[string]any{
		"installer_file":   installer,
		"installer_size":   rec.Size,
		"installer_sha256": rec.SHA256,
	}, []string{ctx.Dirs.InstallerOutput, ctx.Dirs.InstallerScript})
}

type extractPayloadLibraryStage struct{ tk *Toolkit }

func (s *extractPayloadLibraryStage) ID() StageID         { return StageExtractPayloadLibrary }
func (s *extractPayloadLibraryStage) FaultTolerant() bool { return false }

func (s *extractPayloadLibraryStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageExtractInstaller)
}

func (s *extractPayloadLibraryStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	candidates := s.tk.Selector.SelectPayloadLibrary(ctx.Dirs.InstallerOutput, ctx.Dirs.InstallerScript)
	if len(candidates) == 0 {
		return failed(StageExtractPayloadLibrary, start,
			fmt.Errorf("no suitable payload library found"))
	}
	library := candidates[0]
	copied := filepath.Join(ctx.Dirs.Payload, filepath.Base(library))
	if err := extract.CopyFile(library, copied); err != nil {
		return failed(StageExtractPayloadLibrary, start, err)
	}

	rec, err := ctx.RecordFile("payload-library", library, "payload-library")
	if err != nil {
		return failed(StageExtractPayloadLibrary, start, err)
	}
	ctx.Meta.Payload = &PayloadInfo{
		Name:         filepath.Base(library),
		OriginalPath: library,
		CopiedPath:   copied,
		Size:         rec.Size,
		SHA256:       rec.SHA256,
	}
	return completed(StageExtractPayloadLibrary, start, map[string]any{
		"payload_file":   library,
		"payload_copy":   copied,
		"payload_size":   rec.Size,
		"payload_sha256": rec.SHA256,
	}, []string{copied})
}

package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hexverde/malsift/internal/extract"
	"github.com/hexverde/malsift/internal/scan"
)

type scanStringsStage struct{ tk *Toolkit }

func (s *scanStringsStage) ID() StageID         { return StageScanStrings }
func (s *scanStringsStage) FaultTolerant() bool { return false }

func (s *scanStringsStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageExtractPayloadLibrary)
}

func (s *scanStringsStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	library := ctx.Meta.Payload.CopiedPath
	strs, err := s.tk.Scanner.ExtractFile(library)
	if err != nil {
		return failed(StageScanStrings, start, err)
	}
	ctx.Meta.StringsCount = len(strs)
	return completed(StageScanStrings, start, map[string]any{
		"strings_count": len(strs),
		"strings_file":  scan.SidecarPath(library),
		"strings":       strs,
	}, []string{scan.SidecarPath(library)})
}

type classifyURLsStage struct{ tk *Toolkit }

func (s *classifyURLsStage) ID() StageID         { return StageClassifyURLs }
func (s *classifyURLsStage) FaultTolerant() bool { return false }

func (s *classifyURLsStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageScanStrings)
}

func (s *classifyURLsStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	prev := ctx.Result(StageScanStrings)
	strs, _ := prev.Metadata["strings"].([]string)
	if len(strs) == 0 {
		// Fall back to the persisted sidecar file.
		path, _ := prev.Metadata["strings_file"].(string)
		var err error
		strs, err = readLines(path)
		if err != nil {
			return failed(StageClassifyURLs, start, err)
		}
	}

	urls := s.tk.Classifier.FindURLs(strs)
	ctx.Meta.URLsFound = urls
	ctx.Meta.C2URL = s.tk.Classifier.FindC2URL(urls)
	ctx.Meta.DownloadURL = s.tk.Classifier.FindDownloadURL(urls)

	return completed(StageClassifyURLs, start, map[string]any{
		"urls_count":   len(urls),
		"cnc_url":      ctx.Meta.C2URL,
		"download_url": ctx.Meta.DownloadURL,
	}, nil)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read strings file: %w", err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

type fetchSecondaryPayloadStage struct{ tk *Toolkit }

func (s *fetchSecondaryPayloadStage) ID() StageID { return StageFetchSecondaryPayload }

// The secondary-payload fetch depends on infrastructure that may be
// long gone; its failure never kills the run.
func (s *fetchSecondaryPayloadStage) FaultTolerant() bool { return true }

func (s *fetchSecondaryPayloadStage) Gate(ctx *Context) bool {
	return ctx.Succeeded(StageClassifyURLs) && ctx.Meta.DownloadURL != ""
}

func (s *fetchSecondaryPayloadStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	url := ctx.Meta.DownloadURL

	artifact, fromCache, err := s.obtainArtifact(ctx, url)
	if err != nil {
		return failed(StageFetchSecondaryPayload, start, err)
	}
	if _, err := ctx.RecordFile("secondary-payload", artifact, "secondary-payload"); err != nil {
		return failed(StageFetchSecondaryPayload, start, err)
	}

	archive, err := s.tk.Decoder.DecodeTwice(artifact, ctx.Dirs.Secondary)
	if err != nil {
		return failed(StageFetchSecondaryPayload, start, err)
	}
	if _, err := ctx.RecordFile("secondary-archive", archive, "decoded-archive"); err != nil {
		return failed(StageFetchSecondaryPayload, start, err)
	}
	if err := s.tk.Archiver.ExtractArchive(archive, ctx.Dirs.Executable); err != nil {
		return failed(StageFetchSecondaryPayload, start, err)
	}

	metadata := map[string]any{
		"artifact_path": artifact,
		"from_cache":    fromCache,
		"decoded_zip":   archive,
	}
	var artifacts []string
	if exes := extract.FindByExtension(ctx.Dirs.Executable, "exe"); len(exes) > 0 {
		exe := exes[0]
		output := filepath.Join(s.tk.Cfg.OutputDir, filepath.Base(exe))
		if err := extract.CopyFile(exe, output); err != nil {
			return failed(StageFetchSecondaryPayload, start, err)
		}
		if _, err := ctx.RecordFile("executable", exe, "executable"); err != nil {
			return failed(StageFetchSecondaryPayload, start, err)
		}
		metadata["exe_file"] = exe
		metadata["output_path"] = output
		artifacts = append(artifacts, output)
	}
	return completed(StageFetchSecondaryPayload, start, metadata, artifacts)
}

// obtainArtifact serves the download from the shared cache when
// possible, fetching and caching otherwise.
func (s *fetchSecondaryPayloadStage) obtainArtifact(ctx *Context, url string) (string, bool, error) {
	cached := filepath.Join(ctx.Dirs.Secondary, filepath.Base(s.tk.Cache.Path(url)))
	hit, err := s.tk.Cache.Get(url, cached)
	if err != nil {
		return "", false, err
	}
	if hit {
		return cached, true, nil
	}
	fetched, err := s.tk.Fetcher.Fetch(url, ctx.Dirs.Secondary)
	if err != nil {
		return "", false, err
	}
	if err := s.tk.Cache.Put(url, fetched); err != nil {
		return "", false, err
	}
	return fetched, false, nil
}

type finalizeStage struct{ tk *Toolkit }

func (s *finalizeStage) ID() StageID         { return StageFinalize }
func (s *finalizeStage) Gate(*Context) bool  { return true }
func (s *finalizeStage) FaultTolerant() bool { return false }

func (s *finalizeStage) Execute(ctx *Context) StageResult {
	start := time.Now()
	ctx.Meta.Network = NetworkStatus{
		DownloadAttempted: ctx.Meta.DownloadURL != "",
		DownloadSucceeded: ctx.Succeeded(StageFetchSecondaryPayload),
	}

	successful := 0
	for _, st := range ctx.Meta.Stages {
		if st.Success {
			successful++
		}
	}
	return completed(StageFinalize, start, map[string]any{
		"total_stages":      len(ctx.Meta.Stages) + 1,
		"successful_stages": successful + 1,
		"network_status":    ctx.Meta.Network,
	}, nil)
}

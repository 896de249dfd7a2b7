// Package report persists the final analysis record: a structured
// JSON document, a canonical YAML twin with stable key order, and a
// human-readable text rendering.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hexverde/malsift/internal/hashfile"
	"github.com/hexverde/malsift/internal/pipeline"
)

// Record is the serialized analysis result for one sample.
type Record struct {
	SampleInfo  SampleInfo   `json:"sample_info"`
	SessionInfo SessionInfo  `json:"session_info"`
	Files       FileAnalysis `json:"file_analysis"`
	Content     Content      `json:"content_analysis"`
	Network     Network      `json:"network_analysis"`
	Stages      []StageEntry `json:"processing_stages"`
	Assessment  Assessment   `json:"assessment"`
}

type SampleInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type SessionInfo struct {
	SessionID     string  `json:"session_id"`
	AnalysisStart string  `json:"analysis_start"`
	AnalysisEnd   string  `json:"analysis_end,omitempty"`
	TotalDuration float64 `json:"total_duration"`
}

type FileAnalysis struct {
	ExtractedFiles []pipeline.ExtractedFile   `json:"extracted_files"`
	Installer      *pipeline.InstallerInfo    `json:"installer_info"`
	PayloadLibrary *pipeline.PayloadInfo      `json:"payload_library_info"`
	FileHashes     map[string]hashfile.Record `json:"file_hashes"`
}

type Content struct {
	StringsCount int      `json:"strings_count"`
	URLsFound    []string `json:"urls_found"`
	C2URL        string   `json:"cnc_url,omitempty"`
	DownloadURL  string   `json:"download_url,omitempty"`
}

type Network struct {
	DownloadAttempted bool `json:"download_attempted"`
	DownloadSucceeded bool `json:"download_succeeded"`
}

type StageEntry struct {
	Stage        string         `json:"stage"`
	Status       string         `json:"status"`
	Success      bool           `json:"success"`
	Duration     float64        `json:"duration"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Artifacts    []string       `json:"artifacts,omitempty"`
}

type Assessment struct {
	ThreatLevel   string `json:"threat_level"`
	MalwareFamily string `json:"malware_family"`
	Summary       string `json:"summary"`
}

// Build converts run metadata into the serialized record form.
func Build(meta *pipeline.RunMetadata) Record {
	rec := Record{
		SampleInfo: SampleInfo{
			Name:   meta.SampleName,
			Path:   meta.SamplePath,
			Size:   meta.SampleSize,
			SHA256: meta.SampleSHA256,
		},
		SessionInfo: SessionInfo{
			SessionID:     meta.SessionID,
			AnalysisStart: meta.AnalysisStart.Format(time.RFC3339),
			TotalDuration: meta.TotalDurationSeconds,
		},
		Files: FileAnalysis{
			ExtractedFiles: meta.ExtractedFiles,
			Installer:      meta.Installer,
			PayloadLibrary: meta.Payload,
			FileHashes:     meta.FileRecords,
		},
		Content: Content{
			StringsCount: meta.StringsCount,
			URLsFound:    meta.URLsFound,
			C2URL:        meta.C2URL,
			DownloadURL:  meta.DownloadURL,
		},
		Network: Network{
			DownloadAttempted: meta.Network.DownloadAttempted,
			DownloadSucceeded: meta.Network.DownloadSucceeded,
		},
		Assessment: Assessment{
			ThreatLevel:   meta.ThreatLevel,
			MalwareFamily: meta.Family,
			Summary:       meta.Summary,
		},
	}
	if !meta.AnalysisEnd.IsZero() {
		rec.SessionInfo.AnalysisEnd = meta.AnalysisEnd.Format(time.RFC3339)
	}
	for _, st := range meta.Stages {
		rec.Stages = append(rec.Stages, StageEntry{
			Stage:        string(st.Stage),
			Status:       string(st.Status),
			Success:      st.Success,
			Duration:     st.DurationSeconds,
			ErrorMessage: st.ErrorMessage,
			Metadata:     st.Metadata,
			Artifacts:    st.Artifacts,
		})
	}
	return rec
}

// SaveJSON writes the record as indented JSON into outputDir and
// returns the written path.
func SaveJSON(meta *pipeline.RunMetadata, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	b, err := json.MarshalIndent(Build(meta), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result record: %w", err)
	}
	path := filepath.Join(outputDir, meta.SampleName+"_analysis.json")
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write result record: %w", err)
	}
	return path, nil
}

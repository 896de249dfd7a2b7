// Package pipeline implements the staged analysis engine: a closed,
// ordered set of stages, each gated by its prerequisite, accumulating
// results into the run's metadata.
package pipeline

import "time"

// StageID identifies a pipeline stage. The set is closed so the full
// stage order is enumerable and exhaustively testable.
type StageID string

const (
	StageInitialize            StageID = "initialize"
	StageExtractContainer      StageID = "extract_container"
	StageExtractInstaller      StageID = "extract_installer"
	StageExtractPayloadLibrary StageID = "extract_payload_library"
	StageScanStrings           StageID = "scan_strings"
	StageClassifyURLs          StageID = "classify_urls"
	StageFetchSecondaryPayload StageID = "fetch_secondary_payload"
	StageFinalize              StageID = "finalize"
)

// Status of a stage execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult is appended exactly once per executed stage, in
// execution order, and never mutated after creation. A stage that is
// gated out produces no StageResult.
type StageResult struct {
	Stage           StageID        `json:"stage"`
	Status          Status         `json:"status"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	DurationSeconds float64        `json:"duration"`
	Success         bool           `json:"success"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Artifacts       []string       `json:"artifacts,omitempty"`
}

// Stage is one discrete, gated unit of pipeline work. Execute catches
// all internal failures and reports them through the result; it never
// panics past the stage boundary.
type Stage interface {
	ID() StageID
	// Gate may read only previously recorded StageResults from the
	// context, never future ones.
	Gate(ctx *Context) bool
	Execute(ctx *Context) StageResult
	// FaultTolerant stages do not stop the run on failure.
	FaultTolerant() bool
}

func completed(id StageID, start time.Time, metadata map[string]any, artifacts []string) StageResult {
	end := time.Now()
	return StageResult{
		Stage:           id,
		Status:          StatusCompleted,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		Success:         true,
		Metadata:        metadata,
		Artifacts:       artifacts,
	}
}

func failed(id StageID, start time.Time, err error) StageResult {
	end := time.Now()
	return StageResult{
		Stage:           id,
		Status:          StatusFailed,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		Success:         false,
		ErrorMessage:    err.Error(),
	}
}

package analyze

import (
	"testing"

	"github.com/hexverde/malsift/internal/pipeline"
)

func TestFatalStageError(t *testing.T) {
	ok := pipeline.StageResult{Stage: pipeline.StageInitialize, Success: true}
	fetchFail := pipeline.StageResult{
		Stage: pipeline.StageFetchSecondaryPayload, Success: false, ErrorMessage: "fetch timed out",
	}
	extractFail := pipeline.StageResult{
		Stage: pipeline.StageExtractInstaller, Success: false, ErrorMessage: "no installer",
	}

	if err := fatalStageError([]pipeline.StageResult{ok}); err != nil {
		t.Fatalf("all-success run must exit clean: %v", err)
	}
	if err := fatalStageError([]pipeline.StageResult{ok, fetchFail}); err != nil {
		t.Fatalf("best-effort fetch failure must exit clean: %v", err)
	}
	if err := fatalStageError([]pipeline.StageResult{ok, extractFail}); err == nil {
		t.Fatal("fatal stage failure must be reported")
	}
}

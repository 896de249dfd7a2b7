package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Engine sequences an ordered list of stages. It is stateless between
// runs except for the stage list; all per-run state lives in the
// Context.
type Engine struct {
	stages []Stage
	log    *zap.Logger
}

// NewEngine returns an empty Engine.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log}
}

// AddStage appends a stage to the fixed ordered list.
func (e *Engine) AddStage(s Stage) {
	e.stages = append(e.stages, s)
}

// Run iterates the stage list once, in insertion order. A gated-out
// stage is logged and skipped without a result. A failed stage stops
// the run unless it is fault-tolerant. The run is then finalized and
// classified regardless of how the loop ended.
func (e *Engine) Run(ctx *Context) *RunMetadata {
	e.log.Info("starting pipeline", zap.String("sample", ctx.SamplePath))
	for _, st := range e.stages {
		if !st.Gate(ctx) {
			e.log.Info("skipping stage", zap.String("stage", string(st.ID())))
			continue
		}
		e.log.Info("executing stage", zap.String("stage", string(st.ID())))
		result := st.Execute(ctx)
		ctx.AddResult(result)
		if !result.Success && !st.FaultTolerant() {
			e.log.Error("stage failed",
				zap.String("stage", string(st.ID())),
				zap.String("error", result.ErrorMessage))
			break
		}
	}
	ctx.MarkCompleted()
	e.summarize(ctx)
	return ctx.Meta
}

// summarize computes the coarse threat classification and the
// one-line summary. Deterministic in the accumulated metadata.
func (e *Engine) summarize(ctx *Context) {
	meta := ctx.Meta
	switch {
	case meta.Payload != nil && len(meta.URLsFound) > 0:
		meta.ThreatLevel = "high"
		meta.Family = ctx.Cfg.Signatures.Family
	case len(meta.URLsFound) > 0:
		meta.ThreatLevel = "medium"
		meta.Family = "Suspicious"
	default:
		meta.ThreatLevel = "low"
		meta.Family = "Unknown"
	}

	successful := 0
	for _, st := range meta.Stages {
		if st.Success {
			successful++
		}
	}
	parts := []string{
		fmt.Sprintf("Analysis completed in %.1fs", meta.TotalDurationSeconds),
		fmt.Sprintf("%d/%d stages successful", successful, len(meta.Stages)),
		fmt.Sprintf("Threat level: %s", meta.ThreatLevel),
		fmt.Sprintf("Malware family: %s", meta.Family),
	}
	if meta.C2URL != "" {
		parts = append(parts, fmt.Sprintf("C&C server identified: %s", meta.C2URL))
	}
	meta.Summary = strings.Join(parts, " | ")
}

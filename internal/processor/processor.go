// Package processor orchestrates one full analysis run: session
// allocation, pipeline execution, results persistence, and the
// session cleanup policy.
package processor

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/pipeline"
	"github.com/hexverde/malsift/internal/report"
	"github.com/hexverde/malsift/internal/session"
)

// Processor runs samples through the analysis pipeline.
type Processor struct {
	cfg   config.Config
	store *session.Store
	log   *zap.Logger

	// Stages defaults to the full analysis pipeline.
	Stages []pipeline.Stage
	// Out receives the rendered text report.
	Out io.Writer
}

// New returns a Processor wired from the configuration.
func New(cfg config.Config, log *zap.Logger) *Processor {
	tk := pipeline.NewToolkit(cfg, log)
	return &Processor{
		cfg:    cfg,
		store:  session.NewStore(cfg.TempDir, log),
		log:    log,
		Stages: pipeline.DefaultStages(tk),
		Out:    os.Stdout,
	}
}

// Process analyzes one sample. The session directory is removed only
// when every executed stage succeeded and keepTemp is false; any
// failure, explicit keepTemp, or escaping error leaves the directory
// behind with a retention marker naming the reason.
func (p *Processor) Process(samplePath string, keepTemp bool) (*pipeline.RunMetadata, error) {
	sess := p.store.New()
	// A panic escaping a stage must still leave the session directory
	// marked for inspection.
	defer func() {
		if r := recover(); r != nil {
			p.retain(sess, fmt.Sprintf("Error during processing: %v", r))
			panic(r)
		}
	}()

	ctx, err := pipeline.NewContext(samplePath, sess, p.cfg, p.log)
	if err != nil {
		p.retain(sess, fmt.Sprintf("Error during processing: %v", err))
		return nil, err
	}

	engine := pipeline.NewEngine(p.log)
	for _, st := range p.Stages {
		engine.AddStage(st)
	}
	meta := engine.Run(ctx)

	jsonPath, err := report.SaveJSON(meta, p.cfg.OutputDir)
	if err != nil {
		p.retain(sess, fmt.Sprintf("Error during processing: %v", err))
		return meta, err
	}
	yamlPath, err := report.SaveYAML(meta, p.cfg.OutputDir)
	if err != nil {
		p.retain(sess, fmt.Sprintf("Error during processing: %v", err))
		return meta, err
	}
	p.log.Info("analysis results saved",
		zap.String("json", jsonPath), zap.String("yaml", yamlPath))

	report.Render(p.Out, meta)

	switch {
	case keepTemp:
		p.retain(sess, "keep-temp requested")
	case allSucceeded(meta.Stages):
		p.store.Cleanup(sess, false)
	default:
		successful := 0
		for _, st := range meta.Stages {
			if st.Success {
				successful++
			}
		}
		p.retain(sess, fmt.Sprintf("Analysis failed: %d/%d stages successful",
			successful, len(meta.Stages)))
	}
	return meta, nil
}

func allSucceeded(stages []pipeline.StageResult) bool {
	for _, st := range stages {
		if !st.Success {
			return false
		}
	}
	return true
}

func (p *Processor) retain(sess *session.Session, reason string) {
	marker, err := sess.MarkRetention(reason)
	if err != nil {
		p.log.Warn("could not write retention marker",
			zap.String("session", sess.ID), zap.Error(err))
		return
	}
	p.log.Info("keeping session directory",
		zap.String("session", sess.ID),
		zap.String("marker", marker),
		zap.String("reason", reason))
}

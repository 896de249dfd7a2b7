package analyze

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hexverde/malsift/internal/config"
	"github.com/hexverde/malsift/internal/logging"
	"github.com/hexverde/malsift/internal/pipeline"
	"github.com/hexverde/malsift/internal/processor"
)

var (
	cfgPath   string
	toolPath  string
	outputDir string
	logFile   string
	keepTemp  bool
	verbose   bool
)

// Cmd represents the `malsift analyze` command.
var Cmd = &cobra.Command{
	Use:           "analyze <sample>",
	Short:         "Run the full analysis pipeline on a sample",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if cfgPath != "" {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
		}
		if toolPath != "" {
			cfg.ToolPath = toolPath
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		log, err := logging.New(logging.Options{Verbose: verbose, File: logFile})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		defer func() { _ = log.Sync() }()

		meta, err := processor.New(cfg, log).Process(args[0], keepTemp)
		if err != nil {
			return err
		}
		return fatalStageError(meta.Stages)
	},
}

// fatalStageError reports the first stage failure that invalidates the
// run. The secondary-payload fetch is best-effort (its infrastructure
// is usually long dead) and never fails the command.
func fatalStageError(stages []pipeline.StageResult) error {
	for _, st := range stages {
		if st.Success || st.Stage == pipeline.StageFetchSecondaryPayload {
			continue
		}
		return fmt.Errorf("analysis incomplete: stage %s failed: %s", st.Stage, st.ErrorMessage)
	}
	return nil
}

func init() {
	Cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.cue)")
	Cmd.Flags().StringVar(&toolPath, "tool-path", "", "Path to the installer decompilation tool")
	Cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for analysis results")
	Cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	Cmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "Keep the session directory after analysis")
	Cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

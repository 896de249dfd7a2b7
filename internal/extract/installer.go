package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// patchWarningExit is the decompiler's "succeeded with non-fatal
// warnings about patch binaries" exit code.
const patchWarningExit = 283

var (
	// ErrToolNotFound reports a missing decompilation tool binary.
	ErrToolNotFound = errors.New("installer tool not found")
	// ErrToolFailed reports a non-allow-listed tool exit code.
	ErrToolFailed = errors.New("installer tool failed")
)

// ToolRunner invokes the external installer-decompilation tool.
type ToolRunner struct {
	ToolPath string
	log      *zap.Logger
}

// NewToolRunner returns a runner for the tool at path.
func NewToolRunner(path string, log *zap.Logger) *ToolRunner {
	return &ToolRunner{ToolPath: path, log: log}
}

// ExtractInstaller decompiles the installer at path: embedded binaries
// go to outDir, the declarative script to scriptFile. If the tool
// reports a permission-style error writing the script, the run is
// retried once without script output.
func (r *ToolRunner) ExtractInstaller(ctx context.Context, path, outDir, scriptFile string) error {
	if _, err := os.Stat(r.ToolPath); err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotFound, r.ToolPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	args := []string{path, "-x", outDir, "-o", scriptFile}
	code, output, err := r.run(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 && permissionDenied(output) {
		r.log.Warn("script extraction denied, retrying without script output",
			zap.String("installer", path))
		code, output, err = r.run(ctx, []string{path, "-x", outDir})
		if err != nil {
			return err
		}
	}
	switch code {
	case 0:
	case patchWarningExit:
		r.log.Warn("tool reported patch warnings", zap.Int("exit", code))
	default:
		return fmt.Errorf("%w: exit code %d: %s", ErrToolFailed, code, firstLine(output))
	}
	r.log.Info("extracted installer", zap.String("installer", path), zap.String("dir", outDir))
	return nil
}

func (r *ToolRunner) run(ctx context.Context, args []string) (int, string, error) {
	cmd := exec.CommandContext(ctx, r.ToolPath, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	output := buf.String()
	if output != "" {
		r.log.Debug("tool output", zap.String("output", output))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), output, nil
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return -1, output, fmt.Errorf("%w: %s", ErrToolNotFound, r.ToolPath)
		}
		return -1, output, fmt.Errorf("%w: %v", ErrToolFailed, err)
	}
	return 0, output, nil
}

func permissionDenied(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "denied") || strings.Contains(output, "Acceso denegado")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

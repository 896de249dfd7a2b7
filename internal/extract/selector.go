package extract

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
)

// Selector identifies the malicious payload library among the
// installer's embedded binaries. The malicious binary is not simply
// "any .dll in the output": the installer script's custom actions are
// matched against the family's known entry-point signature and the
// referenced binary resource keys are resolved to files.
type Selector struct {
	sig config.Signatures
	log *zap.Logger
}

// NewSelector returns a Selector for the given signature table.
func NewSelector(sig config.Signatures, log *zap.Logger) *Selector {
	return &Selector{sig: sig, log: log}
}

// SelectPayloadLibrary returns the payload candidates under outputDir,
// driven by the installer script(s) in scriptDir. When the signature
// search yields nothing (unfamiliar installer variant) it falls back
// to every .dll under outputDir. Exclusion patterns from the signature
// table are applied last, case-insensitively.
func (s *Selector) SelectPayloadLibrary(outputDir, scriptDir string) []string {
	var candidates []string
	for _, key := range s.scriptBinaryKeys(scriptDir) {
		path := filepath.Join(outputDir, "Binary", key)
		if _, err := os.Stat(path); err == nil {
			s.log.Info("selected payload library from installer script",
				zap.String("path", path))
			candidates = append(candidates, path)
		}
	}
	if len(candidates) == 0 {
		// Legacy compatibility path.
		candidates = FindByExtension(outputDir, "dll")
	}
	return s.applyExclusions(candidates)
}

// scriptBinaryKeys parses the declarative scripts for action entries
// referencing a binary resource key with the malicious entry-point
// name, returning the distinct keys in discovery order.
func (s *Selector) scriptBinaryKeys(scriptDir string) []string {
	pattern := regexp.MustCompile(
		`(?i)<CustomAction[^>]*BinaryKey="([^"]+)"[^>]*DllEntry="` +
			regexp.QuoteMeta(s.sig.EntryPoint) + `"`)

	var keys []string
	seen := map[string]struct{}{}
	for _, script := range FindByExtension(scriptDir, "wxs") {
		content, err := os.ReadFile(script)
		if err != nil {
			s.log.Warn("error reading installer script",
				zap.String("script", script), zap.Error(err))
			continue
		}
		for _, m := range pattern.FindAllStringSubmatch(string(content), -1) {
			key := m[1]
			if key == "" || strings.EqualFold(key, s.sig.SystemActionBinary) {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Selector) applyExclusions(paths []string) []string {
	if len(s.sig.ExcludePatterns) == 0 {
		return paths
	}
	var out []string
	for _, p := range paths {
		name := strings.ToLower(filepath.Base(p))
		excluded := false
		for _, pattern := range s.sig.ExcludePatterns {
			if strings.Contains(name, strings.ToLower(pattern)) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, p)
		}
	}
	return out
}

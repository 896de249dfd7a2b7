package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Config is the immutable configuration threaded through every
// component constructor. Build it once with Default or Load; never
// mutate it afterwards.
type Config struct {
	// ToolPath is the installer-decompilation tool invoked as a
	// subprocess during installer extraction.
	ToolPath string

	// Data directories.
	DataDir    string
	SamplesDir string
	CacheDir   string
	TempDir    string
	OutputDir  string

	// UserAgent is the client identity sent on secondary-payload
	// fetches.
	UserAgent string

	// ArchivePassword, when non-empty, is tried for encrypted sample
	// containers (the conventional "infected" password).
	ArchivePassword string

	Signatures Signatures

	// ClassifyInline is an optional Lua snippet overriding the
	// substring-based URL classification. See scan.LuaHook.
	ClassifyInline string
}

// Signatures is the malware-family signature table. The defaults
// target the one family this toolkit was written for; a config file
// can swap them out without code changes.
type Signatures struct {
	// Family names the malware family reported on a high-confidence
	// classification.
	Family string
	// EntryPoint is the malicious DLL entry-point name matched in the
	// installer script's custom actions.
	EntryPoint string
	// C2PathMarker tags the command-and-control URL by path substring.
	C2PathMarker string
	// DownloadMarker tags the secondary-payload URL, matched
	// case-insensitively anywhere in the URL.
	DownloadMarker string
	// SystemActionBinary is the well-known benign action binary
	// excluded from entry-point matches.
	SystemActionBinary string
	// ExcludePatterns removes known benign binaries from the payload
	// candidates by filename substring, case-insensitively.
	ExcludePatterns []string
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ToolPath:   "./tools/wix/dark.exe",
		DataDir:    "./data",
		SamplesDir: "./data/samples",
		CacheDir:   "./data/cache",
		TempDir:    "./data/temp",
		OutputDir:  "./data/output",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; rv:40.0) Gecko/20100101 Firefox/40.0",
		Signatures: Signatures{
			Family:             "Grandoreiro",
			EntryPoint:         "VIPS0033939",
			C2PathMarker:       "5050/index.php",
			DownloadMarker:     "iso",
			SystemActionBinary: "aicustact.dll",
			ExcludePatterns:    []string{"aicustact"},
		},
	}
}

// EnsureDirs creates the data directories if missing.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.SamplesDir, c.CacheDir, c.TempDir, c.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load parses a CUE config file on top of the defaults. Only fields
// present in the file override the stock values.
func Load(path string) (Config, error) {
	if filepath.Ext(path) != ".cue" {
		return Config{}, errors.New("unsupported config format: expected .cue")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %v", err)
	}

	c := Default()
	decodeString(v, "toolPath", &c.ToolPath)
	decodeString(v, "dataDir", &c.DataDir)
	decodeString(v, "samplesDir", &c.SamplesDir)
	decodeString(v, "cacheDir", &c.CacheDir)
	decodeString(v, "tempDir", &c.TempDir)
	decodeString(v, "outputDir", &c.OutputDir)
	decodeString(v, "userAgent", &c.UserAgent)
	decodeString(v, "archivePassword", &c.ArchivePassword)

	sv := v.LookupPath(cue.ParsePath("signatures"))
	if sv.Exists() {
		decodeString(sv, "family", &c.Signatures.Family)
		decodeString(sv, "entryPoint", &c.Signatures.EntryPoint)
		decodeString(sv, "c2PathMarker", &c.Signatures.C2PathMarker)
		decodeString(sv, "downloadMarker", &c.Signatures.DownloadMarker)
		decodeString(sv, "systemActionBinary", &c.Signatures.SystemActionBinary)
		ev := sv.LookupPath(cue.ParsePath("excludePatterns"))
		if ev.Exists() && ev.Kind() == cue.ListKind {
			var patterns []string
			if err := ev.Decode(&patterns); err == nil {
				c.Signatures.ExcludePatterns = patterns
			}
		}
	}

	cl := v.LookupPath(cue.ParsePath("classify"))
	if cl.Exists() {
		decodeString(cl, "inline", &c.ClassifyInline)
	}
	return c, nil
}

func decodeString(v cue.Value, name string, dst *string) {
	f := v.LookupPath(cue.ParsePath(name))
	if f.Exists() && f.Kind() == cue.StringKind {
		_ = f.Decode(dst)
	}
}

// Package extract unpacks sample containers and installers and
// isolates the malicious payload library among the installer's
// embedded binaries.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeka/zip"
	"go.uber.org/zap"
)

// ErrBadArchive wraps any archive-format failure.
var ErrBadArchive = errors.New("bad archive")

// Archiver extracts zip containers, including password-protected
// malware samples (the conventional "infected" password).
type Archiver struct {
	Password string
	log      *zap.Logger
}

// NewArchiver returns an Archiver; password may be empty.
func NewArchiver(password string, log *zap.Logger) *Archiver {
	return &Archiver{Password: password, log: log}
}

// ExtractArchive unpacks the archive at path into outDir.
func (a *Archiver) ExtractArchive(path, outDir string) error {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrBadArchive, path, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, f := range rc.File {
		if err := a.extractEntry(f, outDir); err != nil {
			return err
		}
	}
	a.log.Info("extracted archive", zap.String("archive", path), zap.String("dir", outDir))
	return nil
}

func (a *Archiver) extractEntry(f *zip.File, outDir string) error {
	dst := filepath.Join(outDir, f.Name)
	// Reject entries escaping the output directory.
	if rel, err := filepath.Rel(outDir, dst); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: unsafe entry path %q", ErrBadArchive, f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0o755)
	}
	if f.IsEncrypted() {
		f.SetPassword(a.Password)
	}
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: entry %s: %v", ErrBadArchive, f.Name, err)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: entry %s: %v", ErrBadArchive, f.Name, err)
	}
	return out.Close()
}

// FindByExtension returns all files under dir with the extension
// (without dot), recursively, in lexical walk order.
func FindByExtension(dir, ext string) []string {
	var out []string
	suffix := "." + strings.ToLower(ext)
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), suffix) {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// CopyFile copies src to dst, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Package hashfile computes content hashes and size metadata for
// artifacts handled by the pipeline.
package hashfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Record holds hash and size metadata for one file. Immutable once
// computed.
type Record struct {
	Path     string     `json:"path"`
	SHA256   string     `json:"sha256"`
	Size     int64      `json:"size"`
	Modified *time.Time `json:"modified_time,omitempty"`
	// Tag is an optional semantic label (sample, installer,
	// payload-library, ...).
	Tag string `json:"file_type,omitempty"`
}

// SumBytes returns the hex SHA-256 of data.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumFile returns the hex SHA-256 of the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FromFile builds a Record for the file at path with the given tag.
func FromFile(path, tag string) (Record, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Record{}, fmt.Errorf("file not found: %s: %w", path, err)
	}
	sum, err := SumFile(path)
	if err != nil {
		return Record{}, err
	}
	mod := fi.ModTime()
	return Record{
		Path:     path,
		SHA256:   sum,
		Size:     fi.Size(),
		Modified: &mod,
		Tag:      tag,
	}, nil
}

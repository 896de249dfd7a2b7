// Package session owns the per-run working directory lifecycle: id
// allocation, lazy directory creation with a human-readable manifest,
// the retention marker, and the cleanup policy primitives.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	manifestName = "session_manifest.txt"
	markerName   = ".debug"
)

// Store allocates sessions under a single temp root. One Store per
// process; each run owns exactly one Session.
type Store struct {
	Root string
	log  *zap.Logger
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, log *zap.Logger) *Store {
	return &Store{Root: dir, log: log}
}

// Session is the isolated workspace for one analysis run. The id is
// generated before any I/O; the directory is created lazily on first
// use.
type Session struct {
	ID      string
	store   *Store
	created bool
}

// New generates a session id without touching the filesystem.
func (s *Store) New() *Session {
	id := "session_" + uuid.New().String()[:16]
	return &Session{ID: id, store: s}
}

// Open wraps an existing session id without creating anything.
func (s *Store) Open(id string) *Session {
	return &Session{ID: id, store: s, created: true}
}

// Path returns the session directory path without creating it.
func (sess *Session) Path() string {
	return filepath.Join(sess.store.Root, sess.ID)
}

// Dir returns the session directory, creating it and its manifest on
// first use.
func (sess *Session) Dir() (string, error) {
	dir := sess.Path()
	if sess.created {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	manifest := filepath.Join(dir, manifestName)
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		content := fmt.Sprintf("Session ID: %s\nCreated: %s\nTemp Directory: %s\n\n", sess.ID, time.Now().Format(time.RFC3339), dir) +
			"Directory Structure:\n" +
			"- processing/              # Main processing directory\n" +
			"  - container-extraction/  # Sample container extraction results\n" +
			"  - installer-output/      # Installer embedded binaries\n" +
			"  - installer-script/      # Installer declarative script\n" +
			"  - payload-library/       # Isolated payload library\n" +
			"  - secondary-payload/     # Fetched and decoded secondary payload\n" +
			"  - executable-output/     # Recovered executables\n" +
			"- session_manifest.txt     # This file\n"
		if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write session manifest: %w", err)
		}
	}
	sess.created = true
	return dir, nil
}

// MarkRetention writes the retention marker. Its presence is a
// standing instruction that the directory must not be auto-deleted.
func (sess *Session) MarkRetention(reason string) (string, error) {
	dir, err := sess.Dir()
	if err != nil {
		return "", err
	}
	marker := filepath.Join(dir, markerName)
	content := fmt.Sprintf("Debug marker created: %s\nReason: %s\nDelete this file to allow automatic cleanup\n",
		time.Now().Format(time.RFC3339), reason)
	if err := os.WriteFile(marker, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write retention marker: %w", err)
	}
	return marker, nil
}

// Retained reports whether the retention marker is present.
func (sess *Session) Retained() bool {
	_, err := os.Stat(filepath.Join(sess.Path(), markerName))
	return err == nil
}

// Cleanup removes the session directory. With force false it is a
// no-op when the retention marker is present. Deletion failures are
// logged as warnings, never raised.
func (s *Store) Cleanup(sess *Session, force bool) {
	dir := sess.Path()
	if _, err := os.Stat(dir); err != nil {
		return
	}
	manifest := filepath.Join(dir, manifestName)
	if f, err := os.OpenFile(manifest, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		fmt.Fprintf(f, "\nCleaned up: %s\n", time.Now().Format(time.RFC3339))
		_ = f.Close()
	}
	if !force && sess.Retained() {
		s.log.Info("skipping cleanup, retention marker present",
			zap.String("session", sess.ID), zap.String("dir", dir))
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("could not remove session directory",
			zap.String("dir", dir), zap.Error(err))
		return
	}
	s.log.Info("cleaned up session directory", zap.String("dir", dir))
}

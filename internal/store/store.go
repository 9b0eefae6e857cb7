// SPDX-License-Identifier: MIT

// Package store persists analysis artifacts on disk. Each video owns one
// directory under the store root:
//
//	<root>/<video_id>/source.<ext>  uploaded source (ingest)
//	<root>/<video_id>/work/         decoded frames and audio
//	<root>/<video_id>/vab.json      the finished bundle
//
// Bundle writes are atomic so a crashed writer never leaves a torn file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/framely/eyes/internal/vab"
)

// ErrNotFound is returned when no bundle exists for a video.
var ErrNotFound = errors.New("bundle not found")

// ErrBadVideoID rejects ids that could escape the store root.
var ErrBadVideoID = errors.New("invalid video id")

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidVideoID reports whether id is safe to use as a directory name.
func ValidVideoID(id string) bool {
	return videoIDRe.MatchString(id) && !strings.Contains(id, "..")
}

// Store is the on-disk artifact layout rooted at one directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// New creates the store root if needed.
func New(root string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the store root path.
func (s *Store) Root() string { return s.root }

// VideoDir returns (and creates) the directory for one video.
func (s *Store) VideoDir(videoID string) (string, error) {
	if !ValidVideoID(videoID) {
		return "", ErrBadVideoID
	}
	dir := filepath.Join(s.root, videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create video dir: %w", err)
	}
	return dir, nil
}

// WorkDir returns (and creates) the scratch directory for decoded material.
func (s *Store) WorkDir(videoID string) (string, error) {
	dir, err := s.VideoDir(videoID)
	if err != nil {
		return "", err
	}
	work := filepath.Join(dir, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return work, nil
}

// SourcePath places an uploaded file inside the video directory. The
// extension is sanitized to a plain suffix.
func (s *Store) SourcePath(videoID, ext string) (string, error) {
	dir, err := s.VideoDir(videoID)
	if err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(filepath.Ext("x"+ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(dir, "source."+ext), nil
}

func (s *Store) bundlePath(videoID string) (string, error) {
	if !ValidVideoID(videoID) {
		return "", ErrBadVideoID
	}
	return filepath.Join(s.root, videoID, "vab.json"), nil
}

// WriteBundle validates the bundle against the schema and writes it
// atomically.
func (s *Store) WriteBundle(videoID string, b *vab.Bundle) error {
	if err := vab.ValidateSchema(b); err != nil {
		return fmt.Errorf("bundle schema: %w", err)
	}
	path, err := s.bundlePath(videoID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	s.logger.Debug().Str("video_id", videoID).Int("bytes", len(data)).Msg("bundle written")
	return nil
}

// ReadBundle loads a previously written bundle.
func (s *Store) ReadBundle(videoID string) (*vab.Bundle, error) {
	path, err := s.bundlePath(videoID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b vab.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// HasBundle reports whether a finished bundle exists.
func (s *Store) HasBundle(videoID string) bool {
	path, err := s.bundlePath(videoID)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// CleanWork removes the scratch directory after a job finishes.
func (s *Store) CleanWork(videoID string) error {
	if !ValidVideoID(videoID) {
		return ErrBadVideoID
	}
	return os.RemoveAll(filepath.Join(s.root, videoID, "work"))
}

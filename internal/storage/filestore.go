// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/util"
)

const (
	sessionExt  = ".json"
	currentFile = "current"
)

// FileStore keeps one JSON document per session in BaseDir.
type FileStore struct {
	// BaseDir holds <id>.json files and the current pointer
	// Default: ~/.ownai/sessions/
	BaseDir string

	mu  sync.Mutex
	log *slog.Logger
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir, log: logger}, nil
}

func (s *FileStore) sessionPath(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.BaseDir, id+sessionExt), nil
}

// Load reads every session file, oldest first.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != sessionExt || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.BaseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("skipping unreadable session file", "path", path, "error", err)
			continue
		}
		sess, err := decodeSession(data)
		if err != nil {
			s.log.Warn("skipping corrupt session file", "path", path, "error", err)
			continue
		}
		snap.Sessions = append(snap.Sessions, sess)
	}

	sort.SliceStable(snap.Sessions, func(i, j int) bool {
		a, b := snap.Sessions[i], snap.Sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	cur, err := os.ReadFile(filepath.Join(s.BaseDir, currentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, err
	}
	snap.CurrentID = strings.TrimSpace(string(cur))
	return snap, nil
}

// SaveSession writes one session file atomically.
func (s *FileStore) SaveSession(ctx context.Context, sess model.Session) error {
	path, err := s.sessionPath(sess.ID)
	if err != nil {
		return err
	}
	data, err := encodeSession(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return util.WriteFileAtomic(path, data, 0o600)
}

// DeleteSession removes one session file.
func (s *FileStore) DeleteSession(ctx context.Context, id string) error {
	path, err := s.sessionPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// SaveCurrent records the current-session pointer. An empty id clears it.
func (s *FileStore) SaveCurrent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.BaseDir, currentFile)
	if id == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return util.WriteFileAtomic(path, []byte(id+"\n"), 0o600)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

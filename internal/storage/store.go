// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jeranaias/ownai/internal/model"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// ErrSessionNotFound is returned when deleting an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// Snapshot is everything a Store holds.
type Snapshot struct {
	// Sessions in stable creation order.
	Sessions []model.Session
	// CurrentID may name a session that no longer exists.
	CurrentID string
}

// Store persists sessions and the current-session pointer.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	SaveSession(ctx context.Context, s model.Session) error
	DeleteSession(ctx context.Context, id string) error
	SaveCurrent(ctx context.Context, id string) error
	Close() error
}

// Open creates the store for backend at path. An empty path selects the
// default location under dir.
func Open(backend, path, dir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch backend {
	case BackendSQLite, "":
		if path == "" {
			path = filepath.Join(dir, "sessions.db")
		}
		return OpenSQLite(path, logger)
	case BackendJSON:
		if path == "" {
			path = filepath.Join(dir, "sessions")
		}
		return NewFileStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// encodeSession is the shared document encoding for both backends.
func encodeSession(s model.Session) ([]byte, error) {
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	return json.MarshalIndent(s, "", "  ")
}

func decodeSession(data []byte) (model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Session{}, err
	}
	if s.ID == "" {
		return model.Session{}, errors.New("session document has no id")
	}
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	s.Settle()
	return s, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/util"
)

// =============================================================================
// EXPORT INTERFACES
// =============================================================================

// Exporter converts a session to a document format.
type Exporter interface {
	// Export converts a session to the target format and returns the content.
	Export(s model.Session) ([]byte, error)

	// FileExtension returns the canonical extension, e.g. ".json".
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Importer parses a document back into a session.
type Importer interface {
	Import(data []byte) (model.Session, error)
}

var (
	// ErrInvalidDocument wraps every structural problem found on import.
	ErrInvalidDocument = errors.New("invalid session document")

	// ErrExportOnly is returned when importing a format that cannot be read back.
	ErrExportOnly = errors.New("format is export-only")
)

// ForPath picks the exporter for a file name. Unknown extensions get JSON.
func ForPath(path string) Exporter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLExporter{}
	case ".md", ".markdown":
		return MarkdownExporter{}
	default:
		return JSONExporter{}
	}
}

// ImporterForPath picks the importer for a file name. Unknown extensions
// are read as JSON.
func ImporterForPath(path string) (Importer, error) {
	switch e := ForPath(path).(type) {
	case Importer:
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrExportOnly, filepath.Ext(path))
	}
}

// =============================================================================
// FILE OPERATIONS
// =============================================================================

// WriteFile exports s to path in the format implied by its extension.
// The file is replaced atomically; on failure any existing file is left
// as it was.
func WriteFile(s model.Session, path string) error {
	data, err := ForPath(path).Export(s)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// ReadFile imports and validates the session stored at path. The returned
// session keeps the document's ID; callers decide whether to trust it.
func ReadFile(path string) (model.Session, error) {
	imp, err := ImporterForPath(path)
	if err != nil {
		return model.Session{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Session{}, fmt.Errorf("read file: %w", err)
	}
	return imp.Import(data)
}

// finish validates a decoded document and normalizes it for use.
func finish(s model.Session, decodeErr error) (model.Session, error) {
	if decodeErr != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrInvalidDocument, decodeErr)
	}
	if err := Validate(s); err != nil {
		return model.Session{}, err
	}
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Settle()
	return s, nil
}

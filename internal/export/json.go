// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/jeranaias/ownai/internal/model"
)

// JSONExporter reads and writes the session schema as indented JSON.
type JSONExporter struct{}

// Export converts a session to JSON.
func (JSONExporter) Export(s model.Session) ([]byte, error) {
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Import parses a JSON session document. Trailing data after the object
// is rejected.
func (JSONExporter) Import(data []byte) (model.Session, error) {
	var s model.Session
	dec := json.NewDecoder(bytes.NewReader(data))
	err := dec.Decode(&s)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after session object")
	}
	return finish(s, err)
}

func (JSONExporter) FileExtension() string { return ".json" }
func (JSONExporter) MimeType() string      { return "application/json" }

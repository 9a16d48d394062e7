// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/ownai/internal/model"
)

// YAMLExporter reads and writes the session schema as YAML.
type YAMLExporter struct{}

// Export converts a session to YAML.
func (YAMLExporter) Export(s model.Session) ([]byte, error) {
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import parses a YAML session document. An empty document is rejected.
func (YAMLExporter) Import(data []byte) (model.Session, error) {
	var s model.Session
	err := yaml.Unmarshal(data, &s)
	if err == nil && len(bytes.TrimSpace(data)) == 0 {
		err = errors.New("empty document")
	}
	if err == nil {
		if serr := checkSenders(s); serr != nil {
			err = serr
		}
	}
	return finish(s, err)
}

func (YAMLExporter) FileExtension() string { return ".yaml" }
func (YAMLExporter) MimeType() string      { return "application/yaml" }

// checkSenders reports unknown senders with their position. JSON rejects
// them while decoding; YAML decodes the raw string.
func checkSenders(s model.Session) error {
	for i, m := range s.Messages {
		if m.Sender != "" && !m.Sender.Valid() {
			return fmt.Errorf("messages[%d]: unknown sender %q", i, m.Sender)
		}
	}
	return nil
}

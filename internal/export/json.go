// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/Legorobotdude/PrivateCode/internal/plan"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the plan exactly as the plan store persists it, so the
// output can be loaded back with plan.LoadFile. Options are ignored.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export marshals p with the plan store's indentation.
func (e *JSONExporter) Export(p *plan.Plan) ([]byte, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	return json.MarshalIndent(p, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

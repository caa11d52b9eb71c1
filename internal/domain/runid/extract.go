// Package runid extracts run identifiers from streamed job output.
//
// Job processes announce a freshly generated run identifier near the start of
// their output, either as a plain marker line ("Run UUID: <id>") or embedded
// in a structured JSON log line. Extraction here is the primary resolution
// path; ledger recovery is the fallback when no line ever matched.
package runid

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/google/uuid"
)

// DefaultMarker is the prefix of the plain-text announcement line.
const DefaultMarker = "Run UUID:"

// DefaultJSONExpr selects the identifier out of structured log lines.
const DefaultJSONExpr = "run_uuid"

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// Marker is the plain-text line prefix; defaults to DefaultMarker.
	Marker string
	// JSONExpr is a JMESPath expression applied to lines that parse as JSON
	// objects; defaults to DefaultJSONExpr. Empty after trimming disables
	// structured extraction.
	JSONExpr string
	// RequireUUID rejects candidates that do not parse as a UUID. Off by
	// default: job processes own the identifier format.
	RequireUUID bool
}

// Extractor scans output lines for a run identifier. Safe for concurrent use.
type Extractor struct {
	marker      string
	jsonExpr    string
	requireUUID bool
}

// NewExtractor validates the JMESPath expression up front and returns an Extractor.
func NewExtractor(opts ExtractorOptions) (*Extractor, error) {
	marker := opts.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	expr := strings.TrimSpace(opts.JSONExpr)
	if opts.JSONExpr == "" {
		expr = DefaultJSONExpr
	}
	if expr != "" {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("compile run id expression %q: %w", expr, err)
		}
	}
	return &Extractor{marker: marker, jsonExpr: expr, requireUUID: opts.RequireUUID}, nil
}

// FromLine returns the run identifier carried by one output line, if any.
func (e *Extractor) FromLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if rest, ok := strings.CutPrefix(line, e.marker); ok {
		return e.accept(strings.TrimSpace(rest))
	}

	if e.jsonExpr != "" && strings.HasPrefix(line, "{") {
		if id, ok := e.fromJSON(line); ok {
			return e.accept(id)
		}
	}

	return "", false
}

func (e *Extractor) fromJSON(line string) (string, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return "", false
	}
	got, err := jmespath.Search(e.jsonExpr, data)
	if err != nil {
		return "", false
	}
	id, ok := got.(string)
	return id, ok && id != ""
}

func (e *Extractor) accept(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if e.requireUUID {
		if _, err := uuid.Parse(id); err != nil {
			return "", false
		}
	}
	return id, true
}

package parsers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidScan marks a scan document that cannot be used as pipeline input
var ErrInvalidScan = errors.New("invalid scan document")

const schemaURL = "scan.json"

// scanSchema is the input contract of the feature extractor. Strings may be null
// because the converter emits null for attributes nmap did not report.
const scanSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["hosts"],
  "properties": {
    "metadata": {"type": ["object", "null"]},
    "hosts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "address":  {"type": ["string", "null"]},
          "hostname": {"type": ["string", "null"]},
          "os":       {"type": ["string", "null"]},
          "services": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "properties": {
                "state":   {"type": ["string", "null"]},
                "service": {"type": ["object", "null"]},
                "scripts": {"$ref": "#/$defs/scripts"}
              }
            }
          },
          "scripts": {"$ref": "#/$defs/scripts"}
        }
      }
    }
  },
  "$defs": {
    "scripts": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "id":       {"type": ["string", "null"]},
          "output":   {"type": ["string", "null"]},
          "elements": {"type": ["array", "null"]},
          "tables":   {"type": ["array", "null"]}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, strings.NewReader(scanSchema)); err != nil {
			compileErr = errors.Wrap(err, "add scan schema")
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// ParseScanFile reads and validates a scan document from disk
func ParseScanFile(path string) (*models.ScanDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "read scan document %s", path),
			"pass the JSON produced by the nmap converter",
		)
	}
	return ParseScan(path, content)
}

// ParseScan validates content against the scan schema and decodes it
func ParseScan(path string, content []byte) (*models.ScanDocument, error) {
	// Step 1: generic decode for schema validation
	var raw any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", path), ErrInvalidScan)
	}

	s, err := schema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(raw); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "validate %s", path), ErrInvalidScan)
	}

	// Step 2: typed decode
	var doc models.ScanDocument
	dec := json.NewDecoder(bytes.NewReader(content))
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", path), ErrInvalidScan)
	}

	return &doc, nil
}

// ScanID derives the scan identifier from the document file name
func ScanID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// GroundTruthSuffix is the file name suffix of ground-truth files.
const GroundTruthSuffix = "_enhanced.json"

const groundTruthSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["pages"],
  "properties": {
    "document": {"type": "string"},
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "label"],
        "properties": {
          "page": {"type": "integer", "minimum": 1},
          "label": {"type": "string", "minLength": 1},
          "family": {"type": "string"}
        }
      }
    }
  }
}`

// GroundTruth is the per-document label file.
type GroundTruth struct {
	Document string            `json:"document,omitempty"`
	Pages    []GroundTruthPage `json:"pages"`
}

// GroundTruthPage labels one page of a document.
type GroundTruthPage struct {
	Page   int    `json:"page"`
	Label  string `json:"label"`
	Family string `json:"family,omitempty"`
}

// GroundTruthValidator checks ground-truth files against their JSON schema.
type GroundTruthValidator struct {
	schema *jsonschema.Schema
}

// NewGroundTruthValidator compiles the ground-truth schema.
func NewGroundTruthValidator() (*GroundTruthValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ground_truth.json", strings.NewReader(groundTruthSchema)); err != nil {
		return nil, fmt.Errorf("failed to load ground truth schema: %w", err)
	}
	schema, err := compiler.Compile("ground_truth.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile ground truth schema: %w", err)
	}
	return &GroundTruthValidator{schema: schema}, nil
}

// Decode validates data and decodes it.
func (v *GroundTruthValidator) Decode(data []byte) (*GroundTruth, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid ground truth JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("ground truth does not match schema: %w", err)
	}
	var gt GroundTruth
	if err := json.Unmarshal(data, &gt); err != nil {
		return nil, err
	}
	return &gt, nil
}

// stem returns the document stem of a ground-truth file name.
func stem(gtPath string) string {
	return strings.TrimSuffix(filepath.Base(gtPath), GroundTruthSuffix)
}

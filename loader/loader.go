// Package loader reads rule sets and fact snapshots from files.
//
// Rule files hold either a top-level list of rules or an object whose
// "rules" field is that list. JSON files use the tagged exchange format
// directly; YAML and CUE documents are converted to the same JSON shape
// before parsing. In YAML the unit variant must be quoted ("Null"), since a
// bare Null is read as a YAML null.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/ruleengine/facts"
	"github.com/liamcoop/ruleengine/rules"
)

// Format identifies a rule file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads, parses and validates the rules in path.
func LoadFile(path string) ([]rules.Rule, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	parsed, err := Parse(data, format, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// Parse decodes a rule document and validates every rule in it.
// name is only used in CUE error positions.
func Parse(data []byte, format Format, name string) ([]rules.Rule, error) {
	doc, err := toJSON(data, format, name)
	if err != nil {
		return nil, err
	}
	list, err := ruleList(doc)
	if err != nil {
		return nil, err
	}

	parsed, err := rules.ParseRules(list)
	if err != nil {
		return nil, err
	}
	if err := rules.ValidateAll(parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func toJSON(data []byte, format Format, name string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, parseError("invalid YAML", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, parseError("YAML document is not representable as JSON", err)
		}
		return out, nil
	case FormatCUE:
		ctx := cuecontext.New()
		v := ctx.CompileBytes(data, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, parseError("invalid CUE", err)
		}
		if field := v.LookupPath(cue.ParsePath("rules")); field.Exists() {
			v = field
		}
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, parseError("incomplete CUE value", err)
		}
		out, err := v.MarshalJSON()
		if err != nil {
			return nil, parseError("failed to export CUE value", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
}

// ruleList unwraps {"rules": [...]} documents.
func ruleList(doc []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var wrapper struct {
		Rules json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, parseError("invalid rule document", err)
	}
	if wrapper.Rules == nil {
		return nil, &rules.Error{Kind: rules.KindParse, Message: `rule document has no "rules" list`}
	}
	return wrapper.Rules, nil
}

func parseError(msg string, err error) error {
	return &rules.Error{Kind: rules.KindParse, Message: msg, Err: err}
}

// LoadFacts reads a JSON or YAML object of plain facts. Integral numbers
// become Int and everything else keeps its natural variant.
func LoadFacts(path string) (rules.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid facts in %s: %w", path, err)
		}
		return facts.Convert(raw, nil)
	default:
		return facts.Decode(data, nil)
	}
}

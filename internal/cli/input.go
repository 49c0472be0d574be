package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/okian/irr/internal/domain/cashflow"
)

// Input formats.
const (
	InputAuto = "auto"
	InputJSON = "json"
	InputYAML = "yaml"
	InputTOML = "toml"
)

// ErrUnknownInputFormat is returned for an unsupported --input value or extension.
var ErrUnknownInputFormat = errors.New("unknown input format")

// Document is a decoded cash-flow file.
type Document struct {
	Flow cashflow.Flow
	// Precision is set when the file carries one.
	Precision *float64
}

// DetectFormat resolves InputAuto from the file extension. Standard input
// ("-") defaults to JSON.
func DetectFormat(path, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case InputJSON, InputYAML, InputTOML:
		return format, nil
	case "", InputAuto:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInputFormat, format)
	}
	if path == "-" {
		return InputJSON, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return InputJSON, nil
	case ".yaml", ".yml":
		return InputYAML, nil
	case ".toml":
		return InputTOML, nil
	default:
		return "", fmt.Errorf("%w: cannot infer from %q, use --input", ErrUnknownInputFormat, path)
	}
}

// ReadDocument reads a cash flow from path, or from stdin when path is "-".
func ReadDocument(path, format string, stdin io.Reader) (Document, error) {
	format, err := DetectFormat(path, format)
	if err != nil {
		return Document{}, err
	}
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeDocument(data, format)
}

// DecodeDocument decodes either a bare date -> amount mapping or an object
// with a "cashflow" mapping and an optional "precision".
func DecodeDocument(data []byte, format string) (Document, error) {
	raw := map[string]any{}
	switch format {
	case InputJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Document{}, fmt.Errorf("%w: json: %v", cashflow.ErrInvalidInput, err)
		}
	case InputYAML:
		if err := decodeYAML(data, raw); err != nil {
			return Document{}, fmt.Errorf("%w: yaml: %v", cashflow.ErrInvalidInput, err)
		}
	case InputTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Document{}, fmt.Errorf("%w: toml: %v", cashflow.ErrInvalidInput, err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownInputFormat, format)
	}

	var doc Document
	amounts := raw
	if inner, ok := raw["cashflow"]; ok {
		m, ok := inner.(map[string]any)
		if !ok {
			return Document{}, fmt.Errorf("%w: cashflow must be a mapping of dates to amounts", cashflow.ErrInvalidInput)
		}
		amounts = m
		if p, ok := raw["precision"]; ok {
			v, err := cashflow.ParseAmount(p)
			if err != nil {
				return Document{}, fmt.Errorf("precision: %w", err)
			}
			doc.Precision = &v
		}
	}

	flow, err := cashflow.Parse(amounts)
	if err != nil {
		return Document{}, err
	}
	doc.Flow = flow
	return doc, nil
}

// yamlDocument pins the nested mapping to string keys. Decoded into an
// interface, YAML dates become time.Time keys.
type yamlDocument struct {
	Cashflow  map[string]any `yaml:"cashflow"`
	Precision any            `yaml:"precision"`
}

func decodeYAML(data []byte, raw map[string]any) error {
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["cashflow"]; !ok {
		return nil
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	raw["cashflow"] = doc.Cashflow
	if doc.Precision != nil {
		raw["precision"] = doc.Precision
	}
	return nil
}

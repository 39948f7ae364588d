// Package preset reads configuration sets from HCL or YAML files so a
// builder can be filled without clicking through the UI.
//
// HCL layout:
//
//	dataframe = "bills"
//
//	configuration "amount" {
//	  operation "filter" {
//	    argument = "amount > 100"
//	  }
//	}
//
// The YAML layout mirrors the submission payload with an optional top-level
// dataframe key. Operation kinds are accepted case-insensitively and by
// their short code.
package preset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v2"

	"distconsole/internal/operations"
	"distconsole/pkg/contracts/domain"
)

// Preset is a named dataframe plus the configurations to submit against it
type Preset struct {
	Dataframe string                  `yaml:"dataframe,omitempty"`
	Set       domain.ConfigurationSet `yaml:",inline"`
}

type hclFile struct {
	Dataframe      string              `hcl:"dataframe,optional"`
	Configurations []*hclConfiguration `hcl:"configuration,block"`
}

type hclConfiguration struct {
	Column     string          `hcl:"column,label"`
	Operations []*hclOperation `hcl:"operation,block"`
}

type hclOperation struct {
	Kind     string  `hcl:"kind,label"`
	Argument *string `hcl:"argument,optional"`
}

// LoadFile reads a preset, choosing the decoder from the file extension
func LoadFile(path string) (*Preset, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset %s: %w", path, err)
	}
	return Parse(path, src)
}

// Parse decodes src. filename selects the format and appears in diagnostics.
func Parse(filename string, src []byte) (*Preset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		return parseHCL(filename, src)
	case ".yaml", ".yml":
		return parseYAML(filename, src)
	default:
		return nil, fmt.Errorf("preset %s: unsupported format %q", filename, filepath.Ext(filename))
	}
}

func parseHCL(filename string, src []byte) (*Preset, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	p := &Preset{Dataframe: parsed.Dataframe}
	p.Set.Configurations = make([]domain.Configuration, 0, len(parsed.Configurations))
	for _, c := range parsed.Configurations {
		cfg := domain.Configuration{Column: c.Column, Operations: make([]domain.Operation, 0, len(c.Operations))}
		for k, op := range c.Operations {
			kind, err := operations.ParseKind(op.Kind)
			if err != nil {
				return nil, fmt.Errorf("preset %s: configuration %q operation %d: %w", filename, c.Column, k, err)
			}
			operation := domain.Operation{Kind: kind}
			if op.Argument != nil {
				operation.SetArgument(*op.Argument)
			}
			cfg.Operations = append(cfg.Operations, operation)
		}
		p.Set.Configurations = append(p.Set.Configurations, cfg)
	}
	return p, nil
}

func parseYAML(filename string, src []byte) (*Preset, error) {
	var p Preset
	if err := yaml.UnmarshalStrict(src, &p); err != nil {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}
	if err := normalize(filename, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// normalize canonicalizes operation kinds and moves an argument written
// under another kind's field to the one the kind selects
func normalize(filename string, p *Preset) error {
	for i := range p.Set.Configurations {
		cfg := &p.Set.Configurations[i]
		for k := range cfg.Operations {
			op := &cfg.Operations[k]
			kind, err := operations.ParseKind(string(op.Kind))
			if err != nil {
				return fmt.Errorf("preset %s: configuration %q operation %d: %w", filename, cfg.Column, k, err)
			}
			arg := firstSet(op.Value, op.Filter, op.Expression)
			op.Kind = kind
			if arg != nil {
				op.SetArgument(*arg)
			} else {
				op.Value, op.Filter, op.Expression = nil, nil, nil
			}
		}
	}
	return nil
}

func firstSet(ptrs ...*string) *string {
	for _, p := range ptrs {
		if p != nil {
			return p
		}
	}
	return nil
}

// WriteYAML encodes p in the YAML preset layout
func WriteYAML(w io.Writer, p *Preset) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	_, err = w.Write(data)
	return err
}

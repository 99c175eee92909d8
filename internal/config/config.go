// Package config loads and validates import plans: the ordered list of
// nodesets to import on top of the base nodeset, with the namespace alias
// each one binds.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/uaspace/internal/graph"
)

// ErrInvalidPlan is returned for plans that fail validation.
var ErrInvalidPlan = errors.New("invalid import plan")

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// Plan describes what to import and how failures are handled.
type Plan struct {
	// NodeSets are imported in order.
	NodeSets []NodeSetEntry `yaml:"nodesets" validate:"dive"`

	// Namespaces are extra namespace URIs registered after the imports.
	Namespaces []string `yaml:"namespaces" validate:"dive,required"`

	// Rollback restores the address space when an import fails.
	Rollback bool `yaml:"rollback"`

	// ContinueOnError keeps importing the remaining entries after a failure.
	ContinueOnError bool `yaml:"continue_on_error"`
}

// NodeSetEntry is one nodeset to import.
type NodeSetEntry struct {
	Path    string   `yaml:"path" validate:"required"`
	Alias   string   `yaml:"alias" validate:"required,alphanum"`
	Depends []string `yaml:"depends" validate:"dive,required,alphanum"`
}

// Load reads and validates the plan at path. Relative nodeset paths are
// resolved against the plan file's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	plan.ResolvePaths(filepath.Dir(path))
	return plan, nil
}

// Parse decodes and validates a YAML plan.
func Parse(data []byte) (*Plan, error) {
	var plan Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks field constraints and the alias dependency order: aliases
// are unique and every dependency names the base alias or an entry declared
// earlier in the list.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}

	declared := map[string]bool{graph.BaseAlias: true}
	for i, entry := range p.NodeSets {
		if declared[entry.Alias] {
			return fmt.Errorf("%w: nodesets[%d]: alias %q is already declared", ErrInvalidPlan, i, entry.Alias)
		}
		for _, dep := range entry.Depends {
			if !declared[dep] {
				return fmt.Errorf("%w: nodesets[%d] (%s): dependency %q must be declared before it", ErrInvalidPlan, i, entry.Alias, dep)
			}
		}
		declared[entry.Alias] = true
	}
	return nil
}

// ResolvePaths makes relative nodeset paths relative to dir.
func (p *Plan) ResolvePaths(dir string) {
	for i := range p.NodeSets {
		if !filepath.IsAbs(p.NodeSets[i].Path) {
			p.NodeSets[i].Path = filepath.Join(dir, p.NodeSets[i].Path)
		}
	}
}

// Append adds entries from "ALIAS=path" specs. Each appended entry depends
// on every entry before it.
func (p *Plan) Append(specs ...string) error {
	for _, spec := range specs {
		alias, path, ok := strings.Cut(spec, "=")
		if !ok || alias == "" || path == "" {
			return fmt.Errorf("%w: nodeset %q: want ALIAS=path", ErrInvalidPlan, spec)
		}
		entry := NodeSetEntry{Path: path, Alias: alias}
		for _, prev := range p.NodeSets {
			entry.Depends = append(entry.Depends, prev.Alias)
		}
		p.NodeSets = append(p.NodeSets, entry)
	}
	return p.Validate()
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := strings.TrimPrefix(e.Namespace(), "Plan.")
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%w: %s: field is required", ErrInvalidPlan, field)
		case "alphanum":
			return fmt.Errorf("%w: %s: %q must be alphanumeric", ErrInvalidPlan, field, e.Value())
		default:
			return fmt.Errorf("%w: %s: validation failed (%s)", ErrInvalidPlan, field, e.Tag())
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
}

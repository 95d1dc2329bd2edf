// Package catalog loads the static tool declarations and binds raw call
// arguments to them.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
)

//go:embed tools.yaml
var embedded []byte

// Parameter types accepted in tools.yaml.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// ParamSpec declares one tool argument.
type ParamSpec struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Required    bool                   `yaml:"required"`
	Default     interface{}            `yaml:"default"`
	Description string                 `yaml:"description"`
	Items       map[string]interface{} `yaml:"items"`
}

// ToolSpec declares one tool.
type ToolSpec struct {
	Name        string      `yaml:"name"`
	Category    string      `yaml:"category"`
	Description string      `yaml:"description"`
	ReadOnly    bool        `yaml:"read_only"`
	Destructive bool        `yaml:"destructive"`
	Params      []ParamSpec `yaml:"params"`
}

// Param returns the declaration of the named argument.
func (t ToolSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Catalog is the parsed tool list. It is immutable after Load.
type Catalog struct {
	Tools []ToolSpec `yaml:"tools"`
	index map[string]int
}

// Load parses the embedded tools.yaml.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing tool catalog: %w", err)
	}
	c.index = make(map[string]int, len(c.Tools))
	for i, t := range c.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		seen := make(map[string]bool, len(t.Params))
		for _, p := range t.Params {
			switch p.Type {
			case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
			default:
				return nil, fmt.Errorf("tool %q: parameter %q has unknown type %q", t.Name, p.Name, p.Type)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("tool %q: duplicate parameter %q", t.Name, p.Name)
			}
			seen[p.Name] = true
		}
		c.index[t.Name] = i
	}
	return &c, nil
}

// Lookup returns the declaration of the named tool.
func (c *Catalog) Lookup(name string) (ToolSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolSpec{}, false
	}
	return c.Tools[i], true
}

// Names returns every tool name in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// normalizers adjust raw arguments before validation.
var normalizers = map[string]func(map[string]interface{}){
	"patch_apply": normalizePatch,
}

// normalizePatch accepts a single operation given either as top-level
// type/start/end/content keys or as an object in place of the list.
func normalizePatch(raw map[string]interface{}) {
	if ops, ok := raw["operations"].(map[string]interface{}); ok {
		raw["operations"] = []interface{}{ops}
		return
	}
	if _, ok := raw["operations"]; ok {
		return
	}
	if _, ok := raw["type"]; !ok {
		return
	}
	op := make(map[string]interface{})
	for _, k := range []string{"type", "start", "end", "content"} {
		if v, ok := raw[k]; ok {
			op[k] = v
			delete(raw, k)
		}
	}
	raw["operations"] = []interface{}{op}
}

// Bind validates raw against the named tool's declaration and fills in
// defaults. raw is not modified.
func (c *Catalog) Bind(name string, raw map[string]interface{}) (Args, error) {
	spec, ok := c.Lookup(name)
	if !ok {
		return Args{}, errors.UnknownTool(name)
	}

	values := make(map[string]interface{}, len(spec.Params))
	for k, v := range raw {
		values[k] = v
	}
	if norm, ok := normalizers[name]; ok {
		norm(values)
	}

	unknown := make([]string, 0)
	for k := range values {
		if _, ok := spec.Param(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Args{}, errors.InvalidParams(unknown[0], "unknown parameter '%s' for tool %s", unknown[0], name)
	}

	for _, p := range spec.Params {
		v, present := values[p.Name]
		if !present || v == nil {
			if p.Required {
				return Args{}, errors.InvalidParams(p.Name, "missing required parameter '%s'", p.Name)
			}
			if p.Default != nil {
				values[p.Name] = p.Default
			} else {
				delete(values, p.Name)
			}
			continue
		}
		coerced, err := coerce(p, v)
		if err != nil {
			return Args{}, err
		}
		values[p.Name] = coerced
	}
	return Args{tool: name, values: values}, nil
}

// coerce checks v against the declared type and returns it in canonical form:
// int for integer, float64 for number, []interface{} for array.
func coerce(p ParamSpec, v interface{}) (interface{}, error) {
	mismatch := func() error {
		return errors.InvalidParams(p.Name, "parameter '%s' must be of type %s, got %T", p.Name, p.Type, v)
	}
	switch p.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				return nil, errors.InvalidParams(p.Name, "parameter '%s' must be an integer, got %v", p.Name, n)
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, errors.InvalidParams(p.Name, "parameter '%s' must be an integer, got %s", p.Name, n)
			}
			return int(i), nil
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f, nil
			}
		}
	case TypeArray:
		switch a := v.(type) {
		case []interface{}:
			if itemType(p) == TypeString {
				for i, item := range a {
					if _, ok := item.(string); !ok {
						return nil, errors.InvalidParams(p.Name, "parameter '%s' item %d must be a string", p.Name, i)
					}
				}
			}
			return a, nil
		case []string:
			out := make([]interface{}, len(a))
			for i, s := range a {
				out[i] = s
			}
			return out, nil
		}
	case TypeObject:
		if m, ok := v.(map[string]interface{}); ok {
			return m, nil
		}
	}
	return nil, mismatch()
}

func itemType(p ParamSpec) string {
	if p.Items == nil {
		return ""
	}
	t, _ := p.Items["type"].(string)
	return t
}

// JSONSchema renders the argument schema of a tool.
func (c *Catalog) JSONSchema(name string) (models.Schema, error) {
	spec, ok := c.Lookup(name)
	if !ok {
		return nil, errors.UnknownTool(name)
	}
	props := make(map[string]interface{}, len(spec.Params))
	required := make([]string, 0)
	for _, p := range spec.Params {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Items != nil {
			prop["items"] = p.Items
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return models.Schema{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}, nil
}

// Definitions lists every tool in the shape served by GET /tools.
func (c *Catalog) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(c.Tools))
	for _, t := range c.Tools {
		schema, _ := c.JSONSchema(t.Name)
		defs = append(defs, models.ToolDefinition{
			Name:            t.Name,
			Category:        t.Category,
			Description:     t.Description,
			ArgumentsSchema: schema,
			Annotations: models.ToolAnnotations{
				ReadOnlyHint:    t.ReadOnly,
				DestructiveHint: t.Destructive,
			},
		})
	}
	return defs
}

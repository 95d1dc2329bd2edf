package catalog

import (
	"fmt"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
)

// Args holds arguments that passed Bind. Accessors return the zero value for
// absent optional parameters.
type Args struct {
	tool   string
	values map[string]interface{}
}

// NewArgs builds Args directly, bypassing validation. Intended for tests and
// for callers that already hold typed values.
func NewArgs(tool string, values map[string]interface{}) Args {
	return Args{tool: tool, values: values}
}

func (a Args) Tool() string { return a.tool }

// Has reports whether the parameter was supplied or defaulted.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

func (a Args) Int(name string) int {
	switch n := a.values[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (a Args) Bool(name string) bool {
	b, _ := a.values[name].(bool)
	return b
}

// Strings returns an array parameter whose items are strings.
func (a Args) Strings(name string) []string {
	switch v := a.values[name].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Operations decodes a patch_apply operation list.
func (a Args) Operations(name string) ([]models.EditOperation, error) {
	switch v := a.values[name].(type) {
	case []models.EditOperation:
		return v, nil
	case []interface{}:
		ops := make([]models.EditOperation, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.InvalidParams(fmt.Sprintf("%s[%d]", name, i), "operation %d must be an object", i+1)
			}
			op, err := decodeOperation(m, fmt.Sprintf("%s[%d]", name, i))
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		return ops, nil
	case nil:
		return nil, nil
	}
	return nil, errors.InvalidParams(name, "parameter '%s' must be a list of operations", name)
}

func decodeOperation(m map[string]interface{}, field string) (models.EditOperation, error) {
	var op models.EditOperation
	for k := range m {
		switch k {
		case "type", "start", "end", "content":
		default:
			return op, errors.InvalidParams(field+"."+k, "unknown operation field '%s'", k)
		}
	}

	t, ok := m["type"].(string)
	if !ok {
		return op, errors.InvalidParams(field+".type", "operation type is required and must be a string")
	}
	op.Type = models.OperationType(t)

	start, err := opInt(m, "start", field, true)
	if err != nil {
		return op, err
	}
	op.Start = start
	if op.End, err = opInt(m, "end", field, false); err != nil {
		return op, err
	}

	if c, present := m["content"]; present && c != nil {
		s, ok := c.(string)
		if !ok {
			return op, errors.InvalidParams(field+".content", "operation content must be a string")
		}
		op.Content = s
	}
	return op, nil
}

func opInt(m map[string]interface{}, key, field string, required bool) (int, error) {
	v, present := m[key]
	if !present || v == nil {
		if required {
			return 0, errors.InvalidParams(field+"."+key, "operation %s is required", key)
		}
		return 0, nil
	}
	n, err := coerce(ParamSpec{Name: field + "." + key, Type: TypeInteger}, v)
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

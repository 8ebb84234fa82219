package catalog

import "fmt"

// MaterializeError reports a template that could not be bound, usually
// because a required parameter was never extracted.
type MaterializeError struct {
	Template string
	Param    string
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s: missing required parameter %q", e.Template, e.Param)
}

// Materialize binds extracted parameter values into a template's positional
// placeholders, in schema order, one placeholder per schema parameter. A
// template needing the same value in two positions must list the name twice
// in its schema. The returned statement and args are ready for parameterized
// execution.
func Materialize(t *Template, params map[string]any) (string, []any, error) {
	args := make([]any, 0, len(t.Schema))
	for _, name := range t.Schema {
		value, ok := params[name]
		if !ok {
			return "", nil, &MaterializeError{Template: t.Name, Param: name}
		}
		args = append(args, value)
	}
	return t.SQL, args, nil
}

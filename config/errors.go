package config

import "fmt"

// ValidationError reports one field that failed Validate, grounded on
// the teacher's config.ValidationError accumulation pattern.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// ValidationErrors aggregates every ValidationError found during a
// single Validate pass.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return ""
	}
	s := fmt.Sprintf("%d config error(s):", len(es))
	for _, e := range es {
		s += "\n\t* " + e.Error()
	}
	return s
}

func (es *ValidationErrors) add(field, msg string) {
	*es = append(*es, &ValidationError{Field: field, Msg: msg})
}

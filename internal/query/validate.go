package query

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a query or aggregation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// Validate checks modifiers and operator placement.
//
// Rules:
//  1. limit and skip are non-negative
//  2. sort directions are 1 (ascending) or -1 (descending)
//  3. field names are non-empty
//  4. operators ($in, $gt, ...) only appear as keys of a field condition, and
//     $in / $nin take an array
func (q *Query) Validate() error {
	v := &validator{}
	if q.Limit < 0 {
		v.addProblem("limit must be non-negative, got %d", q.Limit)
	}
	if q.Skip < 0 {
		v.addProblem("skip must be non-negative, got %d", q.Skip)
	}
	for field, dir := range q.Sort {
		if field == "" {
			v.addProblem("sort field must be non-empty")
		}
		if dir != 1 && dir != -1 {
			v.addProblem("sort direction for %q must be 1 or -1, got %d", field, dir)
		}
	}
	for i, f := range q.Fields {
		if f == "" {
			v.addProblem("fields[%d] must be non-empty", i)
		}
	}
	v.validateFilter(q.Filter, "filter")
	return v.err()
}

// Validate checks that the aggregation carries a reducer.
func (a *Aggregation) Validate() error {
	v := &validator{}
	if strings.TrimSpace(a.Reduce) == "" {
		v.addProblem("reduce is required")
	}
	for field := range a.Key {
		if field == "" {
			v.addProblem("key field must be non-empty")
		}
	}
	v.validateFilter(a.Condition, "condition")
	return v.err()
}

func (v *validator) validateFilter(filter map[string]any, path string) {
	for field, cond := range filter {
		if field == "" {
			v.addProblem("%s: empty field name", path)
			continue
		}
		if strings.HasPrefix(field, "$") {
			v.validateLogical(field, cond, path)
			continue
		}
		ops, ok := cond.(map[string]any)
		if !ok {
			continue // plain equality
		}
		for op, arg := range ops {
			if !strings.HasPrefix(op, "$") {
				continue // nested document equality
			}
			if op == "$in" || op == "$nin" || op == "$all" {
				if _, ok := arg.([]any); !ok {
					v.addProblem("%s.%s: %s takes an array, got %T", path, field, op, arg)
				}
			}
		}
	}
}

func (v *validator) validateLogical(op string, arg any, path string) {
	switch op {
	case "$and", "$or", "$nor":
		clauses, ok := arg.([]any)
		if !ok {
			v.addProblem("%s: %s takes an array of filters, got %T", path, op, arg)
			return
		}
		for i, c := range clauses {
			sub, ok := c.(map[string]any)
			if !ok {
				v.addProblem("%s.%s[%d]: expected filter object, got %T", path, op, i, c)
				continue
			}
			v.validateFilter(sub, fmt.Sprintf("%s.%s[%d]", path, op, i))
		}
	default:
		v.addProblem("%s: operator %s is not allowed at field level", path, op)
	}
}

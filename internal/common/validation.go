package common

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FieldError is one failed check against a named setting.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Rule checks a single value and returns nil when it passes.
type Rule func(value any) string

// Checker collects field errors so every bad setting is reported at once.
type Checker struct {
	failed []FieldError
}

func NewChecker() *Checker {
	return &Checker{}
}

// Field applies rules to value in order, recording each failure under name.
func (c *Checker) Field(name string, value any, rules ...Rule) *Checker {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			c.failed = append(c.failed, FieldError{Field: name, Value: value, Message: msg})
		}
	}
	return c
}

func (c *Checker) HasErrors() bool {
	return len(c.failed) > 0
}

func (c *Checker) Errors() []FieldError {
	return c.failed
}

// Err folds the collected failures into a single invalid-input AppError.
func (c *Checker) Err(code string) error {
	if !c.HasErrors() {
		return nil
	}
	parts := make([]string, 0, len(c.failed))
	for _, f := range c.failed {
		parts = append(parts, f.Error())
	}
	return NewAppError(code, strings.Join(parts, "; "), ErrInvalidInput)
}

// Required rejects empty or whitespace-only strings.
func Required(value any) string {
	switch v := value.(type) {
	case nil:
		return "is required"
	case string:
		if strings.TrimSpace(v) == "" {
			return "is required"
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return "is required"
		}
	}
	return ""
}

// Positive rejects zero or negative numbers and durations.
func Positive(value any) string {
	var ok bool
	switch v := value.(type) {
	case int:
		ok = v > 0
	case int64:
		ok = v > 0
	case time.Duration:
		ok = v > 0
	default:
		return "must be a number"
	}
	if !ok {
		return "must be positive"
	}
	return ""
}

// OneOf accepts a string matching one of choices, ignoring case.
func OneOf(choices ...string) Rule {
	return func(value any) string {
		s, _ := value.(string)
		if slices.Contains(choices, strings.ToLower(strings.TrimSpace(s))) {
			return ""
		}
		return "must be one of " + strings.Join(choices, ", ")
	}
}

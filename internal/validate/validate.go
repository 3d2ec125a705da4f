// Package validate gates outgoing requests on field presence and length
// before any network call is made.
package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultRequiredMessage is reported when a required field is absent or empty.
	DefaultRequiredMessage = "Input is required"
	// UnexpectedMessage replaces any internal failure of the validator itself.
	UnexpectedMessage = "Unexpected validation error"
)

// Rule declares the constraints on a single payload field.
type Rule struct {
	Field     string
	Required  bool
	MinLength int
	// Message overrides the default text for every violation of this rule.
	Message string
}

// Rules are evaluated in declaration order.
type Rules []Rule

// Required returns a rule set marking each field as required with a minimum
// length of one, all reporting DefaultRequiredMessage.
func Required(fields ...string) Rules {
	rules := make(Rules, 0, len(fields))
	for _, f := range fields {
		rules = append(rules, Rule{Field: f, Required: true, MinLength: 1, Message: DefaultRequiredMessage})
	}
	return rules
}

// Result is the terminal outcome of one validation attempt.
type Result struct {
	Valid bool
	Error string
	Field string
}

// Err converts an invalid result into an *Error; a valid result yields nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Field: r.Field, Message: r.Error}
}

// Error is a local, pre-flight validation failure. It never reaches the network.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

var logger = slog.Default

// Validate checks payload against rules and reports the first violation.
// It performs no I/O. Panics from inside the evaluation are recovered and
// reported as UnexpectedMessage.
func Validate(rules Rules, payload map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger().Error("validation helper error", "panic", r)
			res = Result{Valid: false, Error: UnexpectedMessage}
		}
	}()

	for _, rule := range rules {
		if msg, ok := check(rule, payload); !ok {
			return Result{Valid: false, Error: msg, Field: rule.Field}
		}
	}
	return Result{Valid: true}
}

func check(rule Rule, payload map[string]any) (string, bool) {
	value, present := lookup(payload, rule.Field)
	if !present {
		if rule.Required {
			return message(rule, DefaultRequiredMessage), false
		}
		return "", true
	}

	n := utf8.RuneCountInString(value)
	if rule.Required && strings.TrimSpace(value) == "" {
		return message(rule, DefaultRequiredMessage), false
	}
	if rule.MinLength > 0 && n < rule.MinLength {
		return message(rule, fmt.Sprintf("%s must be at least %d characters", rule.Field, rule.MinLength)), false
	}
	return "", true
}

// lookup returns the field rendered as text. Nil and missing values are absent.
func lookup(payload map[string]any, field string) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

func message(rule Rule, def string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return def
}

package rules

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes engine errors.
type ErrorKind string

const (
	// KindParse marks a malformed rule definition.
	KindParse ErrorKind = "PARSE_ERROR"

	// KindEvaluation marks a condition that references a missing fact.
	KindEvaluation ErrorKind = "EVALUATION_ERROR"

	// KindTypeMismatch marks an operator applied to unsupported operand variants.
	KindTypeMismatch ErrorKind = "TYPE_MISMATCH"

	// KindActionFailed marks a failed action side effect.
	KindActionFailed ErrorKind = "ACTION_FAILED"

	// KindInvalidRuleFormat marks a rule rejected by Validate.
	KindInvalidRuleFormat ErrorKind = "INVALID_RULE_FORMAT"
)

// Error is the single error type returned by the engine.
type Error struct {
	Kind    ErrorKind
	Message string

	// RuleID is set when the error happened while running a rule.
	RuleID string

	// Field is the fact or output field involved, if any.
	Field string

	Err error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrParse             = &Error{Kind: KindParse}
	ErrEvaluation        = &Error{Kind: KindEvaluation}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrActionFailed      = &Error{Kind: KindActionFailed}
	ErrInvalidRuleFormat = &Error{Kind: KindInvalidRuleFormat}
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.RuleID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func fieldNotFound(field string) error {
	return &Error{
		Kind:    KindEvaluation,
		Message: fmt.Sprintf("field not found: %s", field),
		Field:   field,
	}
}

func typeMismatch(field, format string, args ...any) error {
	return &Error{
		Kind:    KindTypeMismatch,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

func actionFailed(err error, format string, args ...any) error {
	return &Error{
		Kind:    KindActionFailed,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func parseError(err error, format string, args ...any) error {
	return &Error{
		Kind:    KindParse,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func invalidRule(ruleID, format string, args ...any) error {
	return &Error{
		Kind:    KindInvalidRuleFormat,
		Message: fmt.Sprintf(format, args...),
		RuleID:  ruleID,
	}
}

// withRule stamps the rule ID on an engine error without changing its kind.
func withRule(err error, ruleID string) error {
	if e, ok := err.(*Error); ok && e.RuleID == "" {
		stamped := *e
		stamped.RuleID = ruleID
		return &stamped
	}
	return err
}

package daterule

import "fmt"

// UnresolvableRuleError reports a rule string no vocabulary group could
// match. It is non-fatal per task: callers log it and leave the due date
// unset.
type UnresolvableRuleError struct {
	Rule string
}

func (e *UnresolvableRuleError) Error() string {
	return fmt.Sprintf("no date rule matched %q", e.Rule)
}

// InvalidAnchorError reports an anchor date that failed to parse.
type InvalidAnchorError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidAnchorError) Error() string {
	return fmt.Sprintf("invalid anchor %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidAnchorError) Unwrap() error { return e.Err }

package vipcode

import (
	"strings"

	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/validation"
)

const (
	MinCodeLength = 3
	MaxCodeLength = 50
)

const (
	ViolationTooShort     = "length_too_short"
	ViolationTooLong      = "length_too_long"
	ViolationInvalidChars = "invalid_characters"
)

var formatRules = []struct {
	tag       string
	violation string
}{
	{"min=3", ViolationTooShort},
	{"max=50", ViolationTooLong},
	{validation.TagVipCodeCharset, ViolationInvalidChars},
}

// ValidateCodeFormat runs every format rule and reports all violations at once.
func ValidateCodeFormat(code string) error {
	var details []errutil.Detail
	for _, rule := range formatRules {
		if !validation.Var(code, rule.tag) {
			details = append(details, errutil.Detail{Field: "code", Message: rule.violation})
		}
	}
	if len(details) == 0 {
		return nil
	}
	return errutil.InvalidFormat("code must be 3-50 characters of A-Z, 0-9, _ or -", nil,
		errutil.WithDetails(details...))
}

// Canonicalize is the stored and compared form of a code.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Violations lists the rule names carried by a ValidateCodeFormat error.
func Violations(err error) []string {
	be, ok := errutil.AsBaseError(err)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(be.Details))
	for _, d := range be.Details {
		out = append(out, d.Message)
	}
	return out
}

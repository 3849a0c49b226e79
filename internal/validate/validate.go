// Package validate provides the per-field request checks and sanitizers the
// HTTP boundary applies before anything reaches the repository layer.
package validate

import (
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// Basic email validation, intentionally simplified relative to full RFC 5322.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Length checks that value holds between min and max codepoints inclusive.
// Codepoints, not bytes: a four-byte emoji counts once.
func Length(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		return apperr.Validation("%s must be at least %d characters", field, min)
	}
	if n > max {
		return apperr.Validation("%s must be at most %d characters", field, max)
	}
	return nil
}

// UUID checks that value parses as a UUID in any accepted textual form.
func UUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return apperr.Validation("%s must be a valid UUID", field)
	}
	return nil
}

// Email checks value against the simplified email pattern.
func Email(field, value string) error {
	if !emailPattern.MatchString(strings.TrimSpace(value)) {
		return apperr.Validation("%s must be a valid email address", field)
	}
	return nil
}

// SafeChars checks that every rune of value appears in allowed.
func SafeChars(field, value, allowed string) error {
	for _, r := range value {
		if !strings.ContainsRune(allowed, r) {
			return apperr.Validation("%s contains disallowed character %q", field, r)
		}
	}
	return nil
}

// ContentType checks the request's Content-Type against an allowed list,
// comparing base types only so "application/json; charset=utf-8" passes an
// "application/json" allowance.
func ContentType(header string, allowed []string) error {
	base, _, err := mime.ParseMediaType(header)
	if err != nil {
		return apperr.Validation("unparseable content type %q", header)
	}
	for _, a := range allowed {
		if strings.EqualFold(base, a) {
			return nil
		}
	}
	return apperr.Validation("unsupported content type %q", base)
}

// BodySize checks a declared or measured body length against the configured
// ceiling; a body of exactly max bytes is accepted.
func BodySize(size, max int64) error {
	if max > 0 && size > max {
		return apperr.PayloadTooLarge("request body of %d bytes exceeds the %d byte limit", size, max)
	}
	return nil
}

// Result accumulates field errors across a multi-field check, so a response
// can report every violation at once instead of the first.
type Result struct {
	errs []error
}

// Check records err if non-nil and returns the Result for chaining.
func (r *Result) Check(err error) *Result {
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return r
}

// Valid reports whether no check failed.
func (r *Result) Valid() bool {
	return len(r.errs) == 0
}

// Errors returns the accumulated failures in check order.
func (r *Result) Errors() []error {
	return r.errs
}

// Err collapses the accumulated failures into one Validation error, nil when
// everything passed.
func (r *Result) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(r.errs))
	for i, err := range r.errs {
		msgs[i] = err.Error()
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

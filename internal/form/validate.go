// internal/form/validate.go
//
// Gridkit – Forms subsystem: server-side validation and sanitization.
//
// Context
//   Dialog forms post url-encoded input.  This file checks the submission
//   against its FormDef: required fields, type constraints, regex patterns,
//   option values, and length limits.  It returns a sanitized record the
//   mode handler can trust, or a field error tree.
//
// Workflow
//   •  Validate walks the FieldDefs in definition order.
//   •  Text is stripped of markup by bluemonday's strict policy before any
//      length or pattern rule runs, so limits apply to what is stored.
//   •  Field errors use the hook-form shape {name: {message, type}}, which the
//      dialog normalizer reads without further help.
//   •  Read-only fields are ignored on edit; the stored value stands.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/yanizio/gridkit/internal/dialog"
)

// strict strips every tag.  bluemonday policies are safe for concurrent use
// once built.
var strict = bluemonday.StrictPolicy()

// Rule names reported in the "type" slot of a field error.
const (
	ruleRequired  = "required"
	ruleMinLength = "minLength"
	ruleMaxLength = "maxLength"
	rulePattern   = "pattern"
	ruleInvalid   = "validate"
)

// FieldErrors is the hook-form style error tree produced by Validate.
type FieldErrors map[string]any

func (fe FieldErrors) add(name, rule, msg string) {
	fe[name] = map[string]any{"message": msg, "type": rule}
}

// Validate checks posted against fd for mode.  A non-empty FieldErrors means
// the dialog must re-render with messages.
func Validate(fd *FormDef, mode dialog.Mode, posted url.Values) (dialog.Record, FieldErrors) {
	clean := dialog.Record{}
	errs := FieldErrors{}

	for i := range fd.Fields {
		f := &fd.Fields[i]
		if f.ReadOnly && mode == dialog.ModeEdit {
			continue
		}

		raw, present := extractValue(posted, f)
		if f.Required && (!present || raw == "") {
			errs.add(f.Name, ruleRequired, requiredMsg(f))
			continue
		}
		if !present {
			continue
		}
		if raw == "" {
			clean[f.Name] = ""
			continue
		}

		val, rule, msg := validateAndSanitize(f, raw)
		if msg != "" {
			errs.add(f.Name, rule, msg)
			continue
		}
		clean[f.Name] = val
	}
	return clean, errs
}

// Sanitize strips markup from s and trims surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}

// -----------------------------------------------------------------------------
// Field-level helpers
// -----------------------------------------------------------------------------

// extractValue obtains the raw submitted value for field f.  Checkboxes are
// present when checked; browsers omit unchecked boxes entirely.
func extractValue(v url.Values, f *FieldDef) (string, bool) {
	raw, ok := v[f.Name]
	if !ok || len(raw) == 0 {
		return "", false
	}
	if f.Type == "checkbox" && raw[0] == "" {
		return "on", true
	}
	return strings.TrimSpace(raw[0]), true
}

// validateAndSanitize returns the clean value, or the failed rule and a
// user-facing message.
func validateAndSanitize(f *FieldDef, raw string) (any, string, string) {
	switch f.Type {
	case "text", "textarea":
		val := Sanitize(raw)
		if rule, msg := lengthCheck(f, val); msg != "" {
			return nil, rule, msg
		}
		if f.re != nil && !f.re.MatchString(val) {
			return nil, rulePattern, patternMsg(f)
		}
		return val, "", ""

	case "email":
		if rule, msg := lengthCheck(f, raw); msg != "" {
			return nil, rule, msg
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Address != raw {
			return nil, ruleInvalid, invalidMsg(f)
		}
		return raw, "", ""

	case "password":
		if rule, msg := lengthCheck(f, raw); msg != "" {
			return nil, rule, msg
		}
		return raw, "", ""

	case "number":
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, ruleInvalid, invalidMsg(f)
		}
		return n, "", ""

	case "date":
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return nil, ruleInvalid, invalidMsg(f)
		}
		return raw, "", ""

	case "checkbox":
		switch strings.ToLower(raw) {
		case "false", "off", "0":
			return false, "", ""
		}
		return true, "", ""

	case "select", "radio":
		if !optionAllowed(f.Options, raw) {
			return nil, ruleInvalid, invalidMsg(f)
		}
		return raw, "", ""

	default:
		return nil, ruleInvalid, fmt.Sprintf("Unsupported field type %q.", f.Type)
	}
}

// lengthCheck validates minlength / maxlength rules in runes.
func lengthCheck(f *FieldDef, s string) (string, string) {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		return ruleMinLength, fmt.Sprintf("Must be at least %d characters.", f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return ruleMaxLength, fmt.Sprintf("Must be at most %d characters.", f.MaxLength)
	}
	return "", ""
}

func optionAllowed(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

// user-friendly default messages
func requiredMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "This field is required."
}
func invalidMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "Invalid input."
}
func patternMsg(f *FieldDef) string {
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return "Input does not match required format."
}

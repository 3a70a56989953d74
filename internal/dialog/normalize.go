// internal/dialog/normalize.go
//
// Gridkit – Dialog subsystem: validation error normalizer.
//
// Context
//   Validation libraries disagree on how they report failure: arrays of
//   issues with segment paths, arrays of inner errors with dotted paths,
//   arrays of details with array paths, or nested objects keyed by field.
//   Server-side validation errors come back decoded from JSON in the same
//   shapes.  Normalize collapses all of them into one Errors map so field
//   renderers and the summary banner never see a library-specific value.
//
// Detection (first match wins, structural only)
//   •  IssuesLike   – `issues` array, `zodError`, or a `format` func.
//   •  InnerLike    – `inner` array.
//   •  DetailsLike  – `details` array.
//   •  validator.ValidationErrors from go-playground/validator.
//   •  Generic      – recursive field → message walk.
//
// Invariants
//   •  Normalize never panics and never returns an empty map.
//   •  Every value is a plain string.
//   •  Normalizing an Errors value (or any flat string map) is idempotent.
//
//------------------------------------------------------------------------------

package dialog

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// FormErrorKey holds form-level (non-field) errors.
const FormErrorKey = "_error"

// maxDepth bounds the generic walk.
const maxDepth = 32

// Errors maps a dot-path field name to a human-readable message.
type Errors map[string]string

// Clone returns a copy of e.
func (e Errors) Clone() Errors {
	if e == nil {
		return nil
	}
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Form returns the form-level message, if any.
func (e Errors) Form() string { return e[FormErrorKey] }

// -----------------------------------------------------------------------------
// Typed sources
// -----------------------------------------------------------------------------

// Issue is one entry of an issues or details array.  Path segments are
// strings (object keys) or integers (array indices).
type Issue struct {
	Path    []any
	Message string
}

// IssuesError is the issues-array archetype.  Format, when set, returns a
// tree whose nodes carry `_errors` string arrays.
type IssuesError struct {
	Issues  []Issue
	Message string
	Format  func() map[string]any
}

func (e *IssuesError) Error() string { return nonEmpty(e.Message, msgValidation) }

// InnerIssue is one entry of an inner-errors array with a dotted path.
type InnerIssue struct {
	Path    string
	Message string
}

// InnerError is the inner-array archetype.
type InnerError struct {
	Inner   []InnerIssue
	Message string
}

func (e *InnerError) Error() string { return nonEmpty(e.Message, msgValidation) }

// DetailsError is the details-array archetype.
type DetailsError struct {
	Details []Issue
	Message string
}

func (e *DetailsError) Error() string { return nonEmpty(e.Message, msgValidation) }

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Normalize converts any thrown or returned error value into Errors.
func Normalize(v any) (out Errors) {
	defer func() {
		if r := recover(); r != nil {
			out = Errors{FormErrorKey: msgFallback}
		}
	}()

	out = normalize(v)
	if len(out) == 0 {
		out = Errors{FormErrorKey: msgFallback}
	}
	return out
}

func normalize(v any) Errors {
	switch t := v.(type) {
	case nil:
		return nil
	case Errors:
		return t.Clone()
	case map[string]string:
		return Errors(t).Clone()
	case string:
		if t == "" {
			return nil
		}
		return Errors{FormErrorKey: t}
	case map[string]any:
		return fromMap(t)
	case *InvalidFormError:
		return fromInvalid(t)
	case *ValidationError:
		return t.Errors.Clone()
	case *SubmissionError:
		if len(t.Errors) > 0 {
			return t.Errors.Clone()
		}
		return normalize(t.Cause)
	case *MissingIdentityError:
		return Errors{FormErrorKey: msgMissingID}
	case *IssuesError:
		return fromIssues(t.Issues, t.Message, formatFunc(t.Format))
	case *InnerError:
		return fromInner(t.Inner, t.Message)
	case *DetailsError:
		return fromDetails(t.Details, t.Message)
	case validator.ValidationErrors:
		return fromValidator(t)
	case error:
		return fromError(t)
	}
	return fromValue(v)
}

// fromError unwraps known shapes from an error chain before falling back to
// the error text.
func fromError(err error) Errors {
	var (
		inv  *InvalidFormError
		iss  *IssuesError
		inn  *InnerError
		det  *DetailsError
		vErr validator.ValidationErrors
		ve   *ValidationError
		se   *SubmissionError
		mi   *MissingIdentityError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Errors.Clone()
	case errors.As(err, &se):
		return normalize(se)
	case errors.As(err, &mi):
		return Errors{FormErrorKey: msgMissingID}
	case errors.As(err, &inv):
		return fromInvalid(inv)
	case errors.As(err, &iss):
		return fromIssues(iss.Issues, iss.Message, formatFunc(iss.Format))
	case errors.As(err, &inn):
		return fromInner(inn.Inner, inn.Message)
	case errors.As(err, &det):
		return fromDetails(det.Details, det.Message)
	case errors.As(err, &vErr):
		return fromValidator(vErr)
	case errors.Is(err, ErrNoFormData):
		return Errors{FormErrorKey: msgNoFormData}
	case errors.Is(err, ErrNoHandler):
		return Errors{FormErrorKey: msgNoHandler}
	}
	return Errors{FormErrorKey: nonEmpty(err.Error(), msgFallback)}
}

func fromInvalid(e *InvalidFormError) Errors {
	if e.Source == nil {
		return Errors{FormErrorKey: msgInvalidNoErrors}
	}
	out := normalize(e.Source)
	if len(out) == 0 {
		return Errors{FormErrorKey: msgValidation}
	}
	return out
}

// fromValue handles structs and other non-map values by decoding them into a
// generic map first.
func fromValue(v any) Errors {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		var m map[string]any
		if err := mapstructure.Decode(rv.Interface(), &m); err != nil || m == nil {
			return Errors{FormErrorKey: fmt.Sprint(v)}
		}
		return fromMap(m)
	case reflect.Slice, reflect.Array:
		out := Errors{}
		walk(rv.Interface(), "", out, 0)
		return out
	}
	return Errors{FormErrorKey: fmt.Sprint(v)}
}

// -----------------------------------------------------------------------------
// Structural detection on decoded maps
// -----------------------------------------------------------------------------

func fromMap(m map[string]any) Errors {
	msg, _ := m["message"].(string)

	if raw, ok := asSlice(m["issues"]); ok {
		return fromIssues(issuesFromSlice(raw), msg, formatFunc(m["format"]))
	}
	if z, ok := m["zodError"].(map[string]any); ok {
		return fromMap(z)
	}
	if raw, ok := asSlice(m["errors"]); ok && looksLikeIssues(raw) {
		return fromIssues(issuesFromSlice(raw), msg, formatFunc(m["format"]))
	}
	if f := formatFunc(m["format"]); f != nil {
		return fromIssues(nil, msg, f)
	}
	if raw, ok := asSlice(m["inner"]); ok {
		inner := make([]InnerIssue, 0, len(raw))
		for _, r := range raw {
			e, _ := r.(map[string]any)
			p, _ := e["path"].(string)
			em, _ := e["message"].(string)
			inner = append(inner, InnerIssue{Path: p, Message: em})
		}
		return fromInner(inner, msg)
	}
	if raw, ok := asSlice(m["details"]); ok {
		return fromDetails(issuesFromSlice(raw), msg)
	}

	out := Errors{}
	walk(m, "", out, 0)
	if msg != "" {
		setOnce(out, FormErrorKey, msg)
	}
	return out
}

func looksLikeIssues(raw []any) bool {
	if len(raw) == 0 {
		return false
	}
	for _, r := range raw {
		e, ok := r.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := e["path"]; !ok {
			return false
		}
		if _, ok := e["message"]; !ok {
			return false
		}
	}
	return true
}

func issuesFromSlice(raw []any) []Issue {
	out := make([]Issue, 0, len(raw))
	for _, r := range raw {
		e, ok := r.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := e["message"].(string)
		out = append(out, Issue{Path: segments(e["path"]), Message: msg})
	}
	return out
}

// -----------------------------------------------------------------------------
// Archetype extractors
// -----------------------------------------------------------------------------

func fromIssues(issues []Issue, msg string, format func() map[string]any) Errors {
	out := Errors{}
	for _, is := range issues {
		setOnce(out, issuePath(is.Path), is.Message)
	}
	if len(out) == 0 && format != nil {
		walkFormatted(format(), "", out, 0)
	}
	if len(out) == 0 && msg != "" {
		out[FormErrorKey] = msg
	}
	return out
}

func fromInner(inner []InnerIssue, msg string) Errors {
	out := Errors{}
	for _, e := range inner {
		setOnce(out, e.Path, e.Message)
	}
	if len(out) == 0 && msg != "" {
		out[FormErrorKey] = msg
	}
	return out
}

func fromDetails(details []Issue, msg string) Errors {
	out := Errors{}
	for _, d := range details {
		parts := make([]string, 0, len(d.Path))
		for _, seg := range d.Path {
			parts = append(parts, segmentString(seg))
		}
		setOnce(out, strings.Join(parts, "."), d.Message)
	}
	if len(out) == 0 && msg != "" {
		out[FormErrorKey] = msg
	}
	return out
}

func fromValidator(errs validator.ValidationErrors) Errors {
	out := Errors{}
	for _, fe := range errs {
		ns := fe.Namespace()
		// Drop the root struct name: "Record.Address.City" → "Address.City".
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		} else {
			ns = fe.Field()
		}
		setOnce(out, camelPath(ns), validatorMessage(fe))
	}
	return out
}

// camelPath lower-camels every segment of a validator namespace:
// "Address.ZipCode" → "address.zipCode", "Items[0].SKU" → "items[0].sku".
func camelPath(ns string) string {
	segs := strings.Split(ns, ".")
	for i, seg := range segs {
		name, index := seg, ""
		if j := strings.IndexByte(seg, '['); j >= 0 {
			name, index = seg[:j], seg[j:]
		}
		segs[i] = lowerCamel(name) + index
	}
	return strings.Join(segs, ".")
}

// lowerCamel lowers the leading upper-case run, keeping the last letter of
// an acronym that starts the next word: "URLPath" → "urlPath".
func lowerCamel(s string) string {
	rs := []rune(s)
	n := 0
	for n < len(rs) && unicode.IsUpper(rs[n]) {
		n++
	}
	if n > 1 && n < len(rs) {
		n--
	}
	for i := 0; i < n; i++ {
		rs[i] = unicode.ToLower(rs[i])
	}
	return string(rs)
}

// validatorMessage renders a user-facing message for one failed tag.
func validatorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "url", "uri":
		return "Invalid URL."
	case "min":
		return fmt.Sprintf("Must be at least %s.", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s.", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	default:
		return "Invalid input."
	}
}

// -----------------------------------------------------------------------------
// Walkers
// -----------------------------------------------------------------------------

// walk records every message reachable from node.  Map keys are visited in
// sorted order so duplicate paths resolve deterministically.
func walk(node any, path string, out Errors, depth int) {
	if depth > maxDepth {
		return
	}
	switch n := node.(type) {
	case string:
		if n != "" {
			setOnce(out, path, n)
		}
	case Errors:
		for _, k := range sortedKeys(map[string]string(n)) {
			setOnce(out, joinPath(path, k), n[k])
		}
	case map[string]string:
		walk(Errors(n), path, out, depth)
	case map[string]any:
		msg, hasMsg := n["message"].(string)
		if _, hasType := n["type"].(string); hasMsg && hasType {
			setOnce(out, path, msg)
			return
		}
		if nested, ok := n["errors"].(map[string]any); ok {
			walk(nested, path, out, depth+1)
			return
		}
		for _, k := range sortedKeys(n) {
			if path == "" && k == "message" {
				continue // form-level message, added by fromMap
			}
			walk(n[k], joinPath(path, k), out, depth+1)
		}
	case []any:
		for i, el := range n {
			walk(el, path+"["+strconv.Itoa(i)+"]", out, depth+1)
		}
	case []string:
		// A list of messages for one field; the first one wins.
		if len(n) > 0 {
			setOnce(out, path, n[0])
		}
	case error:
		setOnce(out, path, n.Error())
	}
}

// walkFormatted reads a formatted issues tree: every node may carry an
// `_errors` array, and other keys are nested fields.
func walkFormatted(node map[string]any, path string, out Errors, depth int) {
	if node == nil || depth > maxDepth {
		return
	}
	if msgs, ok := asSlice(node["_errors"]); ok && len(msgs) > 0 {
		if s, ok := msgs[0].(string); ok {
			setOnce(out, path, s)
		}
	} else if msgs, ok := node["_errors"].([]string); ok && len(msgs) > 0 {
		setOnce(out, path, msgs[0])
	}
	for _, k := range sortedKeys(node) {
		if k == "_errors" {
			continue
		}
		child, ok := node[k].(map[string]any)
		if !ok {
			continue
		}
		var next string
		if isIndex(k) {
			next = path + "[" + k + "]"
		} else {
			next = joinPath(path, k)
		}
		walkFormatted(child, next, out, depth+1)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func setOnce(out Errors, key, msg string) {
	if msg == "" {
		return
	}
	if key == "" {
		key = FormErrorKey
	}
	if _, exists := out[key]; exists {
		return
	}
	out[key] = msg
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// issuePath joins segments with "." and renders indices as "[n]".
func issuePath(segs []any) string {
	var b strings.Builder
	for _, seg := range segs {
		if n, ok := asIndex(seg); ok {
			b.WriteString("[" + strconv.Itoa(n) + "]")
			continue
		}
		s := segmentString(seg)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s)
	}
	return b.String()
}

func segments(v any) []any {
	switch p := v.(type) {
	case []any:
		return p
	case []string:
		out := make([]any, len(p))
		for i, s := range p {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(p))
		for i, n := range p {
			out[i] = n
		}
		return out
	case string:
		if p == "" {
			return nil
		}
		return []any{p}
	}
	return nil
}

func asIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n >= 0 && n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func segmentString(v any) string {
	if n, ok := asIndex(v); ok {
		return strconv.Itoa(n)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func formatFunc(v any) func() map[string]any {
	switch f := v.(type) {
	case func() map[string]any:
		return f
	case func() any:
		return func() map[string]any {
			m, _ := f().(map[string]any)
			return m
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

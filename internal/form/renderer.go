// internal/form/renderer.go
//
// Gridkit – Forms subsystem: HTML renderer.
//
// Context
//   Given a parsed FormDef this file converts the definition into safe,
//   accessible dialog markup.  It applies HTML5 validation attributes,
//   pre-fills values from the active record, and places normalized dialog
//   errors: a message beside every input whose name matches an error key,
//   and a summary banner for everything else.
//
// Workflow
//   •  SplitErrors partitions dialog.Errors into field messages and summary
//      entries.  The summary lists the form-level key first and other keys
//      sorted.
//   •  Render writes the banner, then each field via writeField.
//   •  ReadOnly renders every control disabled (view and delete dialogs).
//   •  The caller receives template.HTML so the surrounding template does not
//      double-escape the markup.
//
// Style
//   Output HTML is plain, no framework classes, so themes can style via
//   element selectors or class hooks.  Each input gets id="fld-{name}" and is
//   wrapped in <div class="form-field">.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/yanizio/gridkit/internal/dialog"
)

// RenderOptions bundles optional parameters influencing HTML output.
type RenderOptions struct {
	// Values pre-fills fields by name, typically the active record.
	Values map[string]any
	// Errors are the normalized errors of the last failed submission.
	Errors dialog.Errors
	// ReadOnly disables every control.
	ReadOnly bool
	// Action and Method wrap the fields in a <form>.  Empty Action renders
	// the fields only.
	Action string
	Method string
}

// SummaryEntry is one banner line.
type SummaryEntry struct {
	Key     string
	Message string
}

// SplitErrors returns the messages that belong beside fields of fd and the
// rest, form-level first.
func SplitErrors(fd *FormDef, errs dialog.Errors) (map[string]string, []SummaryEntry) {
	fields := make(map[string]string)
	var summary []SummaryEntry

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if msg, ok := errs[dialog.FormErrorKey]; ok {
		summary = append(summary, SummaryEntry{Key: dialog.FormErrorKey, Message: msg})
	}
	for _, k := range keys {
		if k == dialog.FormErrorKey {
			continue
		}
		if _, ok := fd.Field(k); ok {
			fields[k] = errs[k]
			continue
		}
		summary = append(summary, SummaryEntry{Key: k, Message: errs[k]})
	}
	return fields, summary
}

// Render returns the HTML markup for fd.
func Render(fd *FormDef, opts RenderOptions) (template.HTML, error) {
	if fd == nil {
		return "", fmt.Errorf("form: render nil definition")
	}
	fieldErrs, summary := SplitErrors(fd, opts.Errors)

	var buf bytes.Buffer
	if opts.Action != "" {
		method := opts.Method
		if method == "" {
			method = "post"
		}
		buf.WriteString(`<form action="` + html.EscapeString(opts.Action) + `" method="` + html.EscapeString(method) + `">` + "\n")
	}
	buf.WriteString(`<div class="gridkit-form" data-form="` + html.EscapeString(fd.ID) + `">` + "\n")
	if fd.Title != "" {
		buf.WriteString(`<h2>` + html.EscapeString(fd.Title) + `</h2>` + "\n")
	}

	if len(summary) > 0 {
		buf.WriteString(`<div class="form-errors" role="alert">` + "\n<ul>\n")
		for _, e := range summary {
			line := e.Message
			if e.Key != dialog.FormErrorKey {
				line = e.Key + ": " + e.Message
			}
			buf.WriteString(`<li>` + html.EscapeString(line) + `</li>` + "\n")
		}
		buf.WriteString("</ul>\n</div>\n")
	}

	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := writeField(&buf, f, valueString(opts.Values[f.Name]), fieldErrs[f.Name], opts.ReadOnly); err != nil {
			return "", err
		}
	}

	buf.WriteString(`</div>`)
	if opts.Action != "" {
		buf.WriteString("\n</form>")
	}
	return template.HTML(buf.String()), nil
}

// writeField emits HTML for an individual field into buf.  Each field is
// wrapped in a <div class="form-field">.
func writeField(buf *bytes.Buffer, f *FieldDef, val, errMsg string, readOnly bool) error {
	if errMsg != "" {
		buf.WriteString(`<div class="form-field has-error">` + "\n")
	} else {
		buf.WriteString(`<div class="form-field">` + "\n")
	}

	name := html.EscapeString(f.Name)
	idAttr := `id="fld-` + name + `"`
	nameAttr := `name="` + name + `"`
	var common strings.Builder
	if f.Required {
		common.WriteString(` required`)
	}
	if readOnly {
		common.WriteString(` disabled`)
	} else if f.ReadOnly {
		common.WriteString(` readonly`)
	}
	if errMsg != "" {
		common.WriteString(` aria-invalid="true" aria-describedby="err-` + name + `"`)
	}

	buf.WriteString(`<label for="fld-` + name + `">` + html.EscapeString(f.Label) + `</label>` + "\n")

	switch f.Type {
	case "text", "email", "password", "number", "date":
		buf.WriteString(`<input ` + idAttr + ` ` + nameAttr + ` type="` + f.Type + `"` + common.String())
		writeTextAttrs(buf, f)
		if val != "" && f.Type != "password" {
			buf.WriteString(` value="` + html.EscapeString(val) + `"`)
		}
		buf.WriteString(`>` + "\n")

	case "textarea":
		buf.WriteString(`<textarea ` + idAttr + ` ` + nameAttr + common.String())
		writeTextAttrs(buf, f)
		buf.WriteString(`>` + html.EscapeString(val) + `</textarea>` + "\n")

	case "select":
		buf.WriteString(`<select ` + idAttr + ` ` + nameAttr + common.String() + `>` + "\n")
		for _, opt := range f.Options {
			sel := ""
			if val == opt {
				sel = ` selected`
			}
			o := html.EscapeString(opt)
			buf.WriteString(`<option value="` + o + `"` + sel + `>` + o + `</option>` + "\n")
		}
		buf.WriteString(`</select>` + "\n")

	case "checkbox":
		checked := ""
		if val != "" && strings.ToLower(val) != "false" {
			checked = ` checked`
		}
		buf.WriteString(`<input ` + idAttr + ` ` + nameAttr + ` type="checkbox"` + checked + common.String() + `>` + "\n")

	case "radio":
		for i, opt := range f.Options {
			radioID := fmt.Sprintf("fld-%s-%d", name, i)
			checked := ""
			if val == opt {
				checked = ` checked`
			}
			o := html.EscapeString(opt)
			buf.WriteString(`<div class="radio-option">` + "\n")
			buf.WriteString(`<input id="` + radioID + `" ` + nameAttr + ` type="radio" value="` + o + `"` + checked + common.String() + `>` + "\n")
			buf.WriteString(`<label for="` + radioID + `">` + o + `</label>` + "\n")
			buf.WriteString(`</div>` + "\n")
		}

	default:
		return fmt.Errorf("form: unsupported field type %q in field %s", f.Type, f.Name)
	}

	if errMsg != "" {
		buf.WriteString(`<span class="error" id="err-` + name + `" aria-live="polite">` + html.EscapeString(errMsg) + `</span>` + "\n")
	}
	buf.WriteString(`</div>` + "\n")
	return nil
}

func writeTextAttrs(buf *bytes.Buffer, f *FieldDef) {
	if f.Placeholder != "" {
		buf.WriteString(` placeholder="` + html.EscapeString(f.Placeholder) + `"`)
	}
	if f.MinLength > 0 {
		buf.WriteString(` minlength="` + strconv.Itoa(f.MinLength) + `"`)
	}
	if f.MaxLength > 0 {
		buf.WriteString(` maxlength="` + strconv.Itoa(f.MaxLength) + `"`)
	}
	if f.Pattern != "" {
		buf.WriteString(` pattern="` + html.EscapeString(f.Pattern) + `"`)
	}
}

// valueString formats a record value for an input's value attribute.
func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

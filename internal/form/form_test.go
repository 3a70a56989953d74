// internal/form/form_test.go
//
// Unit-tests for definition parsing, validation, handles, and rendering.
//
// Run: go test ./internal/form -v

package form

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-cmp/cmp"

	"github.com/yanizio/gridkit/internal/dialog"
)

const recordYAML = `
id: records/record
title: Record
fields:
  - name: title
    label: Title
    type: text
    required: true
    minlength: 3
    maxlength: 40
  - name: email
    label: Email
    type: email
  - name: qty
    label: Quantity
    type: number
  - name: status
    label: Status
    type: select
    options: [draft, live]
  - name: sku
    label: SKU
    type: text
    readonly: true
    pattern: "^[A-Z]{3}-[0-9]+$"
  - name: featured
    label: Featured
    type: checkbox
`

func mustDef(t *testing.T) *FormDef {
	t.Helper()
	fd, err := ParseFormDef([]byte(recordYAML), "record.yaml")
	if err != nil {
		t.Fatalf("ParseFormDef: %v", err)
	}
	return fd
}

// -----------------------------------------------------------------------------
// Definitions
// -----------------------------------------------------------------------------

func TestParseFormDef_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing id":      "fields: [{name: a, label: A, type: text}]",
		"no fields":       "id: x",
		"duplicate field": "id: x\nfields: [{name: a, label: A, type: text}, {name: a, label: B, type: text}]",
		"reserved name":   "id: x\nfields: [{name: _error, label: A, type: text}]",
		"bad type":        "id: x\nfields: [{name: a, label: A, type: colour}]",
		"bad pattern":     "id: x\nfields: [{name: a, label: A, type: text, pattern: \"[\"}]",
		"select options":  "id: x\nfields: [{name: a, label: A, type: select}]",
		"length order":    "id: x\nfields: [{name: a, label: A, type: text, minlength: 5, maxlength: 2}]",
	}
	for name, src := range cases {
		if _, err := ParseFormDef([]byte(src), name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFormDef_Serves(t *testing.T) {
	fd := mustDef(t)
	if !fd.Serves(dialog.ModeEdit) || fd.Serves(dialog.ModeDelete) {
		t.Fatal("default modes wrong")
	}
	fd.Modes = []string{"delete"}
	if !fd.Serves(dialog.ModeDelete) || fd.Serves(dialog.ModeCreate) {
		t.Fatal("explicit modes ignored")
	}
}

func TestSet_LoadDirsOverridePrecedence(t *testing.T) {
	site, base := t.TempDir(), t.TempDir()
	write := func(root, title string) {
		dir := filepath.Join(root, "components", "records", "forms")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		body := "id: records/record\ntitle: " + title + "\nfields: [{name: a, label: A, type: text}]\n"
		if err := os.WriteFile(filepath.Join(dir, "record.yaml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(site, "Site")
	write(base, "Base")

	set := NewSet()
	if err := set.LoadDirs([]string{site, base, t.TempDir()}); err != nil {
		t.Fatalf("LoadDirs: %v", err)
	}
	fd, ok := set.Get("records/record")
	if !ok || fd.Title != "Site" || set.Len() != 1 {
		t.Fatalf("got %#v, len %d", fd, set.Len())
	}
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func TestValidate_CleanValues(t *testing.T) {
	fd := mustDef(t)
	posted := url.Values{
		"title":    {"  <b>Hello</b> world "},
		"email":    {"ada@example.com"},
		"qty":      {"3"},
		"status":   {"live"},
		"sku":      {"ABC-1"},
		"featured": {"on"},
		"extra":    {"ignored"},
	}
	got, errs := Validate(fd, dialog.ModeCreate, posted)
	if len(errs) != 0 {
		t.Fatalf("errors: %#v", errs)
	}
	want := dialog.Record{
		"title": "Hello world", "email": "ada@example.com", "qty": float64(3),
		"status": "live", "sku": "ABC-1", "featured": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
}

func TestValidate_FieldErrorsNormalize(t *testing.T) {
	fd := mustDef(t)
	posted := url.Values{
		"title":  {"ab"},
		"email":  {"not-an-email"},
		"status": {"archived"},
		"sku":    {"bad"},
	}
	_, errs := Validate(fd, dialog.ModeCreate, posted)

	want := dialog.Errors{
		"title":  "Must be at least 3 characters.",
		"email":  "Invalid input.",
		"status": "Invalid input.",
		"sku":    "Input does not match required format.",
	}
	if diff := cmp.Diff(want, dialog.Normalize(map[string]any(errs))); diff != "" {
		t.Fatalf("normalized (-want +got):\n%s", diff)
	}
}

func TestValidate_EditSkipsReadOnly(t *testing.T) {
	fd := mustDef(t)
	got, errs := Validate(fd, dialog.ModeEdit, url.Values{"title": {"Fine"}, "sku": {"bad"}})
	if len(errs) != 0 {
		t.Fatalf("errors: %#v", errs)
	}
	if _, ok := got["sku"]; ok {
		t.Fatalf("read-only field submitted on edit: %#v", got)
	}
}

func TestValidate_Required(t *testing.T) {
	_, errs := Validate(mustDef(t), dialog.ModeCreate, url.Values{"title": {"   "}})
	node, _ := errs["title"].(map[string]any)
	if node["type"] != "required" || node["message"] != "This field is required." {
		t.Fatalf("title error = %#v", errs["title"])
	}
}

// -----------------------------------------------------------------------------
// Handles
// -----------------------------------------------------------------------------

func TestHandle_ResolvesThroughDialog(t *testing.T) {
	fd := mustDef(t)
	h := NewHandle(fd, dialog.ModeEdit, url.Values{"title": {"Renamed"}})
	if got := dialog.Probe(h); got != dialog.StrategyValidateThenValues {
		t.Fatalf("probe = %v", got)
	}

	data, _, err := dialog.Resolve(context.Background(), h, dialog.ModeEdit, dialog.Record{"id": 9})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff(dialog.Record{"id": 9, "title": "Renamed"}, data); diff != "" {
		t.Fatalf("payload (-want +got):\n%s", diff)
	}

	bad := NewHandle(fd, dialog.ModeCreate, url.Values{})
	_, _, err = dialog.Resolve(context.Background(), bad, dialog.ModeCreate, nil)
	if got := dialog.Normalize(err); got["title"] != "This field is required." {
		t.Fatalf("normalized = %#v", got)
	}
}

func TestPosted_Elements(t *testing.T) {
	p := Elements(url.Values{"b": {"<i>2</i>"}, "a": {"1", "x"}, "c": {}})
	want := []dialog.Element{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}, {Name: "c", Value: ""}}
	if diff := cmp.Diff(want, p.Elements()); diff != "" {
		t.Fatalf("elements (-want +got):\n%s", diff)
	}
	if dialog.Probe(p) != dialog.StrategyElements {
		t.Fatalf("probe = %v", dialog.Probe(p))
	}
}

type signup struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"min=18"`
}

func TestStructHandle(t *testing.T) {
	h := NewStructHandle[signup](map[string]any{"email": "ada@example.com", "age": "36"})
	got, err := h.GetValidatedValues(context.Background())
	if err != nil {
		t.Fatalf("GetValidatedValues: %v", err)
	}
	if diff := cmp.Diff(dialog.Record{"email": "ada@example.com", "age": 36}, got); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}

	_, err = NewStructHandle[signup](map[string]any{"age": 12}).GetValidatedValues(context.Background())
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationErrors, got %v", err)
	}
	want := dialog.Errors{"email": "This field is required.", "age": "Must be at least 18."}
	if diff := cmp.Diff(want, dialog.Normalize(err)); diff != "" {
		t.Fatalf("normalized (-want +got):\n%s", diff)
	}
}

// -----------------------------------------------------------------------------
// Rendering
// -----------------------------------------------------------------------------

func TestSplitErrors(t *testing.T) {
	fd := mustDef(t)
	fields, summary := SplitErrors(fd, dialog.Errors{
		"title":             "Too short",
		"zeta":              "Z",
		"alpha.beta":        "A",
		dialog.FormErrorKey: "Server said no",
	})
	if diff := cmp.Diff(map[string]string{"title": "Too short"}, fields); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	want := []SummaryEntry{
		{Key: dialog.FormErrorKey, Message: "Server said no"},
		{Key: "alpha.beta", Message: "A"},
		{Key: "zeta", Message: "Z"},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
}

func TestRender(t *testing.T) {
	fd := mustDef(t)
	out, err := Render(fd, RenderOptions{
		Values: map[string]any{"title": `"Quoted"`, "qty": float64(2.5), "status": "live", "featured": true},
		Errors: dialog.Errors{"title": "Too short", dialog.FormErrorKey: "Try again"},
		Action: "/records",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)
	for _, want := range []string{
		`<form action="/records" method="post">`,
		`value="&#34;Quoted&#34;"`,
		`value="2.5"`,
		`<option value="live" selected>`,
		`type="checkbox" checked`,
		`<span class="error" id="err-title" aria-live="polite">Too short</span>`,
		`<li>Try again</li>`,
		`sku" type="text" readonly`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<li>title") {
		t.Error("field error duplicated in summary")
	}
}

func TestRender_ReadOnly(t *testing.T) {
	out, err := Render(mustDef(t), RenderOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Count(string(out), " disabled") != 6 {
		t.Fatalf("not every control disabled:\n%s", out)
	}
	if strings.Contains(string(out), "<form") {
		t.Fatal("form wrapper rendered without action")
	}
}

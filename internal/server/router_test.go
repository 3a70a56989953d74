// internal/server/router_test.go
//
// End-to-end tests for the dialog routes over sqlmock.
//
// Run: go test ./internal/server -v

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/gridkit/internal/dialog"
	"github.com/yanizio/gridkit/internal/form"
	"github.com/yanizio/gridkit/internal/store"
)

const recordForm = `
id: records/record
title: Record
modes: [create, edit, view, delete]
fields:
  - name: title
    label: Title
    type: text
    required: true
  - name: qty
    label: Quantity
    type: number
`

var (
	qGet    = regexp.QuoteMeta(`SELECT id, data FROM records WHERE id = ?`)
	qInsert = regexp.QuoteMeta(`INSERT INTO records (data) VALUES (?)`)
	qLock   = regexp.QuoteMeta(`SELECT data FROM records WHERE id = ? FOR UPDATE`)
	qUpdate = regexp.QuoteMeta(`UPDATE records SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	qDelete = regexp.QuoteMeta(`DELETE FROM records WHERE id = ?`)
)

func newTestRouter(t *testing.T, opts Options) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(sqlx.NewDb(db, "mysql"), "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if opts.Forms == nil {
		fd, err := form.ParseFormDef([]byte(recordForm), "record.yaml")
		if err != nil {
			t.Fatalf("form: %v", err)
		}
		opts.Forms = form.NewSet()
		opts.Forms.Add(fd)
		opts.FormID = fd.ID
	}
	opts.Store = st
	return Router(opts), mock
}

func do(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

const formCT = "application/x-www-form-urlencoded"

func TestCreate(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectExec(qInsert).WithArgs(`{"qty":2,"title":"Hello"}`).WillReturnResult(sqlmock.NewResult(41, 1))

	rec := do(h, http.MethodPost, "/records", formCT, url.Values{"title": {"Hello"}, "qty": {"2"}}.Encode())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	want := response{State: dialog.StateSucceeded, Record: dialog.Record{"id": float64(41), "title": "Hello", "qty": float64(2)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response (-want +got):\n%s", diff)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreate_InvalidInputIs422(t *testing.T) {
	h, mock := newTestRouter(t, Options{})

	rec := do(h, http.MethodPost, "/records", formCT, url.Values{"qty": {"many"}}.Encode())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decode(t, rec)
	want := dialog.Errors{"title": "This field is required.", "qty": "Invalid input."}
	if got.State != dialog.StateFailed {
		t.Fatalf("state = %s", got.State)
	}
	if diff := cmp.Diff(want, got.Errors); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store touched on invalid input: %v", err)
	}
}

func TestCreate_VetoedByHook(t *testing.T) {
	h, _ := newTestRouter(t, Options{Hooks: dialog.Hooks{
		OnBeforeSubmit: func(context.Context, dialog.Mode, dialog.Record) (dialog.Record, bool) { return nil, false },
	}})
	rec := do(h, http.MethodPost, "/records", formCT, "title=Hello")
	if rec.Code != http.StatusConflict || decode(t, rec).State != dialog.StateIdle {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestEdit_JSONBodyMerges(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectQuery(qGet).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow(int64(7), []byte(`{"title":"Old","qty":1,"note":"kept"}`)))
	mock.ExpectBegin()
	mock.ExpectQuery(qLock).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"title":"Old","qty":1,"note":"kept"}`)))
	mock.ExpectExec(qUpdate).WithArgs(sqlmock.AnyArg(), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := do(h, http.MethodPost, "/records/7", "application/json", `{"title":"New"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decode(t, rec).Record
	want := dialog.Record{"id": float64(7), "title": "New", "qty": float64(1), "note": "kept"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEdit_UnknownRecordIs404(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectQuery(qGet).WithArgs(int64(99)).WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))

	rec := do(h, http.MethodPost, "/records/99", formCT, "title=New")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := do(h, http.MethodGet, "/records/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestViewAndDelete(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "data"}).AddRow(int64(5), []byte(`{"title":"Five"}`))
	}
	mock.ExpectQuery(qGet).WithArgs(int64(5)).WillReturnRows(row())
	mock.ExpectQuery(qGet).WithArgs(int64(5)).WillReturnRows(row())
	mock.ExpectExec(qDelete).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(h, http.MethodGet, "/records/5", "", "")
	if rec.Code != http.StatusOK || decode(t, rec).Record["title"] != "Five" {
		t.Fatalf("view: status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodDelete, "/records/5", "", "")
	if rec.Code != http.StatusOK || decode(t, rec).State != dialog.StateSucceeded {
		t.Fatalf("delete: status = %d, body = %s", rec.Code, rec.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDelete_VanishedRowIs404(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectQuery(qGet).WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow(int64(6), []byte(`{}`)))
	mock.ExpectExec(qDelete).WithArgs(int64(6)).WillReturnResult(sqlmock.NewResult(0, 0))

	rec := do(h, http.MethodDelete, "/records/6", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decode(t, rec).Errors.Form(); got != store.ErrNotFound.Error() {
		t.Fatalf("form error = %q", got)
	}
}

func TestRenderDialog(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectQuery(qGet).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow(int64(7), []byte(`{"title":"Seven","qty":3}`)))

	rec := do(h, http.MethodGet, "/dialogs/edit?id=7", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/records/7"`, `value="Seven"`, `value="3"`} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}

	if rec := do(h, http.MethodGet, "/dialogs/archive", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown mode status = %d", rec.Code)
	}
	view := do(h, http.MethodGet, "/dialogs/create", "", "").Body.String()
	if !strings.Contains(view, `action="/records"`) {
		t.Fatalf("create dialog:\n%s", view)
	}
}

func TestRawElementsWithoutDefinition(t *testing.T) {
	h, mock := newTestRouter(t, Options{Forms: form.NewSet()})
	mock.ExpectExec(qInsert).WithArgs(`{"anything":"goes"}`).WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(h, http.MethodPost, "/records", formCT, "anything=%3Cb%3Egoes%3C%2Fb%3E")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	rec := do(h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dialog_registered_forms") {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
}

func TestNew_Timeouts(t *testing.T) {
	srv := New(":0", http.NotFoundHandler(), Timeouts{Write: time.Minute})
	if srv.WriteTimeout != time.Minute || srv.ReadTimeout != 10*time.Second || srv.IdleTimeout != time.Minute {
		t.Fatalf("timeouts = %v / %v / %v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestEdit_PostedIDCannotRetarget(t *testing.T) {
	h, mock := newTestRouter(t, Options{Forms: form.NewSet()})
	mock.ExpectQuery(qGet).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow(int64(5), []byte(`{"title":"Five"}`)))
	mock.ExpectBegin()
	mock.ExpectQuery(qLock).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"title":"Five"}`)))
	mock.ExpectExec(qUpdate).WithArgs(`{"title":"Changed"}`, int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := do(h, http.MethodPost, "/records/5", formCT, "id=7&title=Changed")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decode(t, rec).Record["id"]; got != float64(5) {
		t.Fatalf("record id = %v, want 5", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestLoad_StoreFailureHidesDriverError(t *testing.T) {
	h, mock := newTestRouter(t, Options{})
	mock.ExpectQuery(qGet).WithArgs(int64(5)).
		WillReturnError(errors.New("dial tcp 10.0.0.7:3306: connection refused"))

	rec := do(h, http.MethodGet, "/records/5", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.7") {
		t.Fatalf("driver error leaked: %s", rec.Body)
	}
	if got := decode(t, rec).Errors.Form(); got != msgLoadFailed {
		t.Fatalf("form error = %q", got)
	}
}

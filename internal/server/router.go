// internal/server/router.go
//
// Gridkit – HTTP surface for grid CRUD dialogs.
//
// Context
//   Each request opens one dialog machine, submits it once, and reports the
//   settled state.  The machine never sees HTTP: the posted body becomes a
//   form handle, the record store supplies the mode handlers, and the row
//   loaded by id becomes the active record.
//
// Routes
//   GET    /dialogs/{mode}   render the dialog form (?id= pre-fills)
//   POST   /records          create
//   POST   /records/{id}     edit
//   GET    /records/{id}     view
//   DELETE /records/{id}     delete
//   GET    /metrics          Prometheus
//
// Status codes
//   201 create, 200 otherwise on success; 422 validation failure; 404
//   unknown record; 400 malformed id; 503 request cancelled; 409 handler
//   failure or veto.
//
//------------------------------------------------------------------------------

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/gridkit/internal/dialog"
	"github.com/yanizio/gridkit/internal/form"
	"github.com/yanizio/gridkit/internal/logger"
	"github.com/yanizio/gridkit/internal/middleware"
	"github.com/yanizio/gridkit/internal/store"
)

const (
	maxBody       = 1 << 20
	msgLoadFailed = "The record could not be loaded."
)

// Options wires the router.
type Options struct {
	Forms      *form.Set
	FormID     string // definition served for records; empty posts raw elements
	Store      *store.Store
	Hooks      dialog.Hooks
	Transforms []dialog.BeforeSubmitFunc
	Logger     *zap.SugaredLogger
	ForceHTTPS bool
}

type api struct {
	Options
}

// Router returns the chi router for opts.
func Router(opts Options) http.Handler {
	a := &api{Options: opts}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.ForceHTTPS(opts.ForceHTTPS))
	r.Use(middleware.Security)

	r.Get("/dialogs/{mode}", a.renderDialog)
	r.Route("/records", func(r chi.Router) {
		r.Post("/", a.create)
		r.Get("/{id}", a.view)
		r.Post("/{id}", a.edit)
		r.Delete("/{id}", a.remove)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// -----------------------------------------------------------------------------
// Dialog rendering
// -----------------------------------------------------------------------------

func (a *api) renderDialog(w http.ResponseWriter, r *http.Request) {
	mode := dialog.Mode(chi.URLParam(r, "mode"))
	fd := a.def()
	if fd == nil || !fd.Serves(mode) {
		http.NotFound(w, r)
		return
	}

	opts := form.RenderOptions{ReadOnly: mode == dialog.ModeView || mode == dialog.ModeDelete}
	if id := r.URL.Query().Get("id"); id != "" {
		rec, ok := a.load(w, r, id)
		if !ok {
			return
		}
		opts.Values = rec
	}
	switch mode {
	case dialog.ModeCreate:
		opts.Action = "/records"
	case dialog.ModeEdit:
		id, ok := dialog.Record(opts.Values).ID()
		if !ok {
			writeJSON(w, http.StatusBadRequest, response{State: dialog.StateFailed,
				Errors: dialog.Normalize(&dialog.MissingIdentityError{Mode: mode})})
			return
		}
		opts.Action = "/records/" + url.PathEscape(fmt.Sprint(id))
	}

	out, err := form.Render(fd, opts)
	if err != nil {
		logger.FromContext(r.Context()).Errorw("render dialog failed", "form", fd.ID, "err", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// -----------------------------------------------------------------------------
// Submissions
// -----------------------------------------------------------------------------

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	posted, ok := readInput(w, r)
	if !ok {
		return
	}
	a.submit(w, r, dialog.ModeCreate, a.handle(dialog.ModeCreate, posted), nil, http.StatusCreated)
}

func (a *api) edit(w http.ResponseWriter, r *http.Request) {
	active, ok := a.load(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	posted, ok := readInput(w, r)
	if !ok {
		return
	}
	a.submit(w, r, dialog.ModeEdit, a.handle(dialog.ModeEdit, posted), active, http.StatusOK)
}

func (a *api) view(w http.ResponseWriter, r *http.Request) {
	active, ok := a.load(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	a.submit(w, r, dialog.ModeView, nil, active, http.StatusOK)
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	active, ok := a.load(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	a.submit(w, r, dialog.ModeDelete, nil, active, http.StatusOK)
}

// submit runs one dialog machine to completion and writes its outcome.
func (a *api) submit(w http.ResponseWriter, r *http.Request, mode dialog.Mode, h dialog.FormHandle, active dialog.Record, okStatus int) {
	var saved dialog.Record
	m := dialog.NewMachine(dialog.Options{
		Mode:       mode,
		Handle:     h,
		Record:     active,
		Handlers:   a.Store.Handlers(func(rec dialog.Record) { saved = rec }),
		Hooks:      a.Hooks,
		Transforms: a.Transforms,
	})
	m.Submit(r.Context())

	resp := response{State: m.State(), Errors: m.Errors()}
	switch resp.State {
	case dialog.StateSucceeded:
		switch {
		case saved != nil:
			resp.Record = saved
		case mode == dialog.ModeView:
			resp.Record = active
		}
		writeJSON(w, okStatus, resp)
	case dialog.StateIdle:
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, statusFor(m.Err()), resp)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (a *api) def() *form.FormDef {
	if a.Forms == nil || a.FormID == "" {
		return nil
	}
	fd, _ := a.Forms.Get(a.FormID)
	return fd
}

// handle picks the definition-backed handle when one is configured.
func (a *api) handle(mode dialog.Mode, posted url.Values) dialog.FormHandle {
	if fd := a.def(); fd != nil {
		return form.NewHandle(fd, mode, posted)
	}
	return form.Elements(posted)
}

// load fetches the active record for id, writing the error response itself
// when it fails.
func (a *api) load(w http.ResponseWriter, r *http.Request, id string) (dialog.Record, bool) {
	rec, err := a.Store.Get(r.Context(), id)
	if err == nil {
		return rec, true
	}
	status, errs := statusFor(err), dialog.Normalize(err)
	if status == http.StatusConflict {
		// Driver errors stay in the log.
		logger.FromContext(r.Context()).Errorw("load record failed", "id", id, "err", err)
		status, errs = http.StatusInternalServerError, dialog.Errors{dialog.FormErrorKey: msgLoadFailed}
	}
	writeJSON(w, status, response{State: dialog.StateFailed, Errors: errs})
	return nil, false
}

func statusFor(err error) int {
	var (
		ve *dialog.ValidationError
		mi *dialog.MissingIdentityError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrBadID), errors.As(err, &mi):
		return http.StatusBadRequest
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusConflict
}

// readInput accepts url-encoded, multipart, or JSON object bodies.
func readInput(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, response{State: dialog.StateFailed,
				Errors: dialog.Errors{dialog.FormErrorKey: "malformed form body"}})
			return nil, false
		}
		return r.PostForm, true
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, response{State: dialog.StateFailed,
			Errors: dialog.Errors{dialog.FormErrorKey: "malformed JSON body"}})
		return nil, false
	}
	out := url.Values{}
	for k, v := range body {
		switch x := v.(type) {
		case nil:
		case string:
			out.Set(k, x)
		case float64:
			out.Set(k, strconv.FormatFloat(x, 'f', -1, 64))
		case bool:
			out.Set(k, strconv.FormatBool(x))
		default:
			raw, _ := json.Marshal(x)
			out.Set(k, string(raw))
		}
	}
	return out, true
}

type response struct {
	State  dialog.State  `json:"state"`
	Errors dialog.Errors `json:"errors,omitempty"`
	Record dialog.Record `json:"record,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

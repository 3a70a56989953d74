// internal/dialog/record.go
//
// Gridkit – Dialog subsystem: records and modes.
//
// Context
//   A Record is the entity a dialog creates, edits, views, or deletes.  The
//   container owns it and hands it to forms and handlers by reference, so
//   every transformation here returns a deep copy.  Callers must never rely on
//   a Record being mutated in place.
//
//------------------------------------------------------------------------------

package dialog

import (
	"github.com/mitchellh/copystructure"
)

// Mode names the kind of dialog.  Custom modes are plain strings.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
	ModeView   Mode = "view"
	ModeDelete Mode = "delete"
)

// Record is an arbitrary keyed entity.  Edit and delete expect an "id" key;
// "_id" is accepted as a secondary identity key.
type Record map[string]any

// ID returns the record identity, checking "id" then "_id".  The boolean is
// false when neither key holds a non-nil value.
func (r Record) ID() (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r["id"]; ok && v != nil {
		return v, true
	}
	if v, ok := r["_id"]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// Clone returns a deep copy.  Values copystructure cannot walk (funcs,
// channels) fall back to a shallow top-level copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	if v, err := copystructure.Copy(map[string]any(r)); err == nil {
		if m, ok := v.(map[string]any); ok {
			return Record(m)
		}
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithID returns a copy whose identity is id.  An identity already present
// in r is replaced, so the payload can never point at another record.
func (r Record) WithID(id any) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	if id == nil {
		return out
	}
	out["id"] = id
	if _, ok := out["_id"]; ok {
		out["_id"] = id
	}
	return out
}

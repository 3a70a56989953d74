// internal/form/struct.go
//
// Gridkit – Forms subsystem: struct-backed form handle.
//
// Context
//   Programmatic dialogs (imports, API clients) describe their input as a Go
//   struct with `validate` tags instead of a YAML definition.  StructHandle
//   decodes loose values into the struct, validates it, and hands back the
//   struct re-encoded as a record.  Failures surface as
//   validator.ValidationErrors, which the dialog normalizer understands.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/yanizio/gridkit/internal/dialog"
)

// StructHandle validates Values as a T.
type StructHandle[T any] struct {
	Values map[string]any
	v      *validator.Validate
}

// NewStructHandle returns a handle whose field paths use json tag names.
func NewStructHandle[T any](values map[string]any) *StructHandle[T] {
	return &StructHandle[T]{Values: values, v: newValidator()}
}

// GetValidatedValues decodes, validates, and re-encodes the input.
func (h *StructHandle[T]) GetValidatedValues(ctx context.Context) (dialog.Record, error) {
	var target T
	if err := decode(h.Values, &target); err != nil {
		return nil, fmt.Errorf("form: decode %T: %w", target, err)
	}
	if err := h.v.StructCtx(ctx, &target); err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := decode(target, &out); err != nil {
		return nil, fmt.Errorf("form: encode %T: %w", target, err)
	}
	return dialog.Record(out), nil
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// newValidator reports field names by json tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

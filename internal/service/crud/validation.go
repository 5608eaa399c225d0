package crud

import (
	"context"
	"fmt"
	"slices"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// FieldValidator checks one field value. ok=false with msg is a rejection
// reported to the caller; err is an infrastructure failure and aborts the
// operation. The current Action is available from ctx.
type FieldValidator func(ctx context.Context, value any) (ok bool, msg string, err error)

// CrossFieldHook sees the whole attribute set after every field passed and
// returns the set to persist. It may derive fields, drop input-only ones,
// or reject with a *domain.ValidationError.
type CrossFieldHook func(ctx context.Context, attrs Attrs) (Attrs, error)

// Validators is the per-entity registry of field validators and cross-field
// hooks.
type Validators struct {
	fields map[string]FieldValidator
	cross  []CrossFieldHook
}

// NewValidators creates an empty registry.
func NewValidators() *Validators {
	return &Validators{fields: map[string]FieldValidator{}}
}

// Field registers fn for name. A field may carry several validators; they run
// in registration order and stop at the first rejection.
func (v *Validators) Field(name string, fn FieldValidator) *Validators {
	if prev, ok := v.fields[name]; ok {
		v.fields[name] = chain(prev, fn)
		return v
	}
	v.fields[name] = fn
	return v
}

// Cross registers a cross-field hook. Hooks run in registration order.
func (v *Validators) Cross(fn CrossFieldHook) *Validators {
	v.cross = append(v.cross, fn)
	return v
}

func chain(first, second FieldValidator) FieldValidator {
	return func(ctx context.Context, value any) (bool, string, error) {
		ok, msg, err := first(ctx, value)
		if err != nil || !ok {
			return ok, msg, err
		}
		return second(ctx, value)
	}
}

// whitelist keeps writable columns and fields with a registered validator
// (input-only fields such as a password consumed by a hook).
func (v *Validators) whitelist(desc *repository.Descriptor, attrs Attrs) Attrs {
	out := make(Attrs, len(attrs))
	for k, val := range attrs {
		if desc.Writable(k) {
			out[k] = val
			continue
		}
		if v == nil {
			continue
		}
		if _, ok := v.fields[k]; ok {
			out[k] = val
		}
	}
	return out
}

// Validate runs the pipeline: whitelist, per-field dispatch in sorted key
// order with every rejection collected, then cross-field hooks if all fields
// passed. The result contains only writable columns.
func (v *Validators) Validate(ctx context.Context, desc *repository.Descriptor, attrs Attrs) (Attrs, error) {
	candidate := v.whitelist(desc, attrs)

	if v != nil {
		keys := make([]string, 0, len(candidate))
		for k := range candidate {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		var rejected []domain.FieldError
		for _, k := range keys {
			fn, ok := v.fields[k]
			if !ok {
				continue
			}
			accepted, msg, err := fn(ctx, candidate[k])
			if err != nil {
				return nil, fmt.Errorf("validate %s: %w", k, err)
			}
			if !accepted {
				rejected = append(rejected, domain.FieldError{Field: k, Message: msg})
			}
		}
		if len(rejected) > 0 {
			return nil, domain.NewValidationErrors(rejected)
		}

		for _, hook := range v.cross {
			var err error
			candidate, err = hook(ctx, candidate)
			if err != nil {
				return nil, err
			}
		}
	}

	return Attrs(desc.Pick(candidate)), nil
}

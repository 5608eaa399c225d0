// Package crudtest provides an in-memory crud.Repository for service tests.
package crudtest

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// Repo keeps rows of T in memory. Filters support exact matches and the
// "in", "ne" and "icontains" lookups on top-level columns. Columns listed in
// Unique are checked together on create like a composite unique index.
type Repo[T repository.Entity] struct {
	Unique []string

	mu     sync.Mutex
	rows   []*T
	nextID int64
	desc   *repository.Descriptor
}

// NewRepo creates an empty Repo.
func NewRepo[T repository.Entity](unique ...string) *Repo[T] {
	return &Repo[T]{Unique: unique, desc: repository.Describe[T]()}
}

// Descriptor returns the descriptor of T.
func (r *Repo[T]) Descriptor() *repository.Descriptor { return r.desc }

// Seed inserts rows built from attrs and returns them.
func (r *Repo[T]) Seed(attrs ...map[string]any) []*T {
	out := make([]*T, 0, len(attrs))
	for _, a := range attrs {
		row, err := r.Create(context.Background(), a)
		if err != nil {
			panic(fmt.Sprintf("crudtest: seed %s: %v", r.desc.Table, err))
		}
		out = append(out, row)
	}
	return out
}

// Len returns the number of stored rows.
func (r *Repo[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Fetch returns matching rows by ascending id.
func (r *Repo[T]) Fetch(_ context.Context, p repository.Params) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []T{}
	for _, row := range r.rows {
		ok, err := r.match(row, p.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *row)
		}
	}
	if p.Offset >= uint64(len(out)) {
		return []T{}, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && p.Limit < uint64(len(out)) {
		out = out[:p.Limit]
	}
	return out, nil
}

// Retrieve returns the first matching row or domain.ErrNotFound.
func (r *Repo[T]) Retrieve(ctx context.Context, filters repository.Filters, _ ...string) (*T, error) {
	rows, err := r.Fetch(ctx, repository.Params{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", r.desc.Table, domain.ErrNotFound)
	}
	return &rows[0], nil
}

// Exists reports whether any row matches.
func (r *Repo[T]) Exists(ctx context.Context, filters repository.Filters) (bool, error) {
	rows, err := r.Fetch(ctx, repository.Params{Filters: filters, Limit: 1})
	return len(rows) > 0, err
}

// Create stores a row built from attrs.
func (r *Repo[T]) Create(_ context.Context, attrs map[string]any, _ ...string) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := new(T)
	if err := assign(row, attrs); err != nil {
		return nil, err
	}
	if len(r.Unique) > 0 {
		for _, other := range r.rows {
			if r.sameKey(row, other) {
				return nil, fmt.Errorf("%s: %w", r.desc.Table, domain.ErrAlreadyExists)
			}
		}
	}

	r.nextID++
	now := time.Now()
	if err := assign(row, map[string]any{"id": r.nextID, "created_at": now, "updated_at": now}); err != nil {
		return nil, err
	}
	r.rows = append(r.rows, row)
	cp := *row
	return &cp, nil
}

// UpdateAndReload applies values to the first matching row.
func (r *Repo[T]) UpdateAndReload(_ context.Context, filters repository.Filters, values map[string]any, _ ...string) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		ok, err := r.match(row, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := assign(row, values); err != nil {
			return nil, err
		}
		if err := assign(row, map[string]any{"updated_at": time.Now()}); err != nil {
			return nil, err
		}
		cp := *row
		return &cp, nil
	}
	return nil, fmt.Errorf("%s: %w", r.desc.Table, domain.ErrNotFound)
}

// Delete removes matching rows.
func (r *Repo[T]) Delete(_ context.Context, filters repository.Filters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	kept := r.rows[:0]
	for _, row := range r.rows {
		ok, err := r.match(row, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func (r *Repo[T]) sameKey(a, b *T) bool {
	for _, col := range r.Unique {
		av, _ := r.desc.Value(a, col)
		bv, _ := r.desc.Value(b, col)
		if fmt.Sprint(deref(av)) != fmt.Sprint(deref(bv)) {
			return false
		}
	}
	return true
}

func (r *Repo[T]) match(row *T, filters repository.Filters) (bool, error) {
	for key, want := range filters {
		field, lookup, _ := strings.Cut(key, "__")
		got, ok := r.desc.Value(row, field)
		if !ok {
			return false, fmt.Errorf("crudtest: %s.%s: %w", r.desc.Table, field, repository.ErrUnknownField)
		}
		if !compare(lookup, deref(got), want) {
			return false, nil
		}
	}
	return true, nil
}

func compare(lookup string, got, want any) bool {
	g := fmt.Sprint(got)
	switch lookup {
	case "", "exact":
		return g == fmt.Sprint(deref(want))
	case "ne":
		return g != fmt.Sprint(deref(want))
	case "in":
		v := reflect.ValueOf(want)
		if v.Kind() != reflect.Slice {
			return false
		}
		items := make([]string, v.Len())
		for i := range items {
			items[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return slices.Contains(items, g)
	case "icontains":
		return strings.Contains(strings.ToLower(g), strings.ToLower(fmt.Sprint(want)))
	case "isnull":
		isNull := got == nil
		return isNull == want
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}

// assign sets struct fields by db tag, converting between compatible kinds
// the way a database round trip would.
func assign(entity any, attrs map[string]any) error {
	v := reflect.ValueOf(entity).Elem()
	t := v.Type()
	for col, val := range attrs {
		idx := -1
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).Tag.Get("db") == col {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("crudtest: %s has no column %q", t, col)
		}
		if err := set(v.Field(idx), val); err != nil {
			return fmt.Errorf("crudtest: %s.%s: %w", t, col, err)
		}
	}
	return nil
}

func set(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	src := reflect.ValueOf(val)
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		src = src.Elem()
	}

	target := field.Type()
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	if !src.Type().ConvertibleTo(target) {
		return fmt.Errorf("cannot store %T in %s", val, field.Type())
	}
	converted := src.Convert(target)
	if field.Kind() == reflect.Pointer {
		p := reflect.New(target)
		p.Elem().Set(converted)
		field.Set(p)
		return nil
	}
	field.Set(converted)
	return nil
}

package repository

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
)

// joinNode is one segment of the eager-load tree built from dotted paths.
type joinNode struct {
	children map[string]*joinNode
}

func parseJoins(d *Descriptor, paths []string) (*joinNode, error) {
	root := &joinNode{children: map[string]*joinNode{}}
	for _, path := range paths {
		node, cur := root, d
		for _, name := range strings.Split(path, ".") {
			rel, ok := cur.relations[name]
			if !ok {
				return nil, fmt.Errorf("%w: join %q on %s", ErrUnknownField, path, d.Table)
			}
			child, ok := node.children[name]
			if !ok {
				child = &joinNode{children: map[string]*joinNode{}}
				node.children[name] = child
			}
			node, cur = child, rel.Target
		}
	}
	return root, nil
}

// eagerLoad resolves every relation of the tree with one set-based query per
// node, regardless of the number of owners. owners must be addressable struct
// values of d's type.
func eagerLoad(ctx context.Context, q postgres.Querier, d *Descriptor, owners []reflect.Value, node *joinNode) error {
	if len(owners) == 0 || node == nil {
		return nil
	}

	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		rel := d.relations[name]
		var (
			next []reflect.Value
			err  error
		)
		switch rel.Kind {
		case BelongsTo:
			next, err = loadBelongsTo(ctx, q, d, rel, owners)
		case HasMany:
			next, err = loadHasMany(ctx, q, d, rel, owners)
		}
		if err != nil {
			return fmt.Errorf("load %s.%s: %w", d.Table, name, err)
		}
		if err := eagerLoad(ctx, q, rel.Target, next, node.children[name]); err != nil {
			return err
		}
	}
	return nil
}

func loadBelongsTo(ctx context.Context, q postgres.Querier, d *Descriptor, rel *Relation, owners []reflect.Value) ([]reflect.Value, error) {
	fk := d.colIndex[rel.Key]
	keys := distinctKeys(owners, fk)
	if len(keys) == 0 {
		return nil, nil
	}

	target := rel.Target
	rows, err := selectByKeys(ctx, q, target, target.PK, keys)
	if err != nil {
		return nil, err
	}

	byPK := make(map[any]reflect.Value, rows.Len())
	loaded := make([]reflect.Value, rows.Len())
	for i := range rows.Len() {
		el := rows.Index(i)
		loaded[i] = el
		if k, ok := keyOf(el.FieldByIndex(target.colIndex[target.PK])); ok {
			byPK[k] = el.Addr()
		}
	}

	for _, o := range owners {
		k, ok := keyOf(o.FieldByIndex(fk))
		if !ok {
			continue
		}
		if ptr, found := byPK[k]; found {
			o.FieldByIndex(rel.index).Set(ptr)
		}
	}
	return loaded, nil
}

func loadHasMany(ctx context.Context, q postgres.Querier, d *Descriptor, rel *Relation, owners []reflect.Value) ([]reflect.Value, error) {
	keys := distinctKeys(owners, d.colIndex[d.PK])
	if len(keys) == 0 {
		return nil, nil
	}

	target := rel.Target
	rows, err := selectByKeys(ctx, q, target, rel.Key, keys)
	if err != nil {
		return nil, err
	}

	groups := make(map[any][]reflect.Value)
	for i := range rows.Len() {
		el := rows.Index(i)
		if k, ok := keyOf(el.FieldByIndex(target.colIndex[rel.Key])); ok {
			groups[k] = append(groups[k], el)
		}
	}

	var loaded []reflect.Value
	for _, o := range owners {
		k, _ := keyOf(o.FieldByIndex(d.colIndex[d.PK]))
		field := o.FieldByIndex(rel.index)
		group := groups[k]

		// Non-nil even when empty: the relation was loaded.
		s := reflect.MakeSlice(field.Type(), 0, len(group))
		for _, el := range group {
			s = reflect.Append(s, el)
		}
		field.Set(s)

		for i := range field.Len() {
			loaded = append(loaded, field.Index(i))
		}
	}
	return loaded, nil
}

func selectByKeys(ctx context.Context, q postgres.Querier, d *Descriptor, col string, keys []any) (reflect.Value, error) {
	sql, args, err := psql.
		Select(d.qualifiedColumns(d.Table)...).
		From(quote(d.Table)).
		Where(squirrel.Eq{column(d.Table, col): keys}).
		OrderBy(column(d.Table, d.PK) + " ASC").
		ToSql()
	if err != nil {
		return reflect.Value{}, err
	}

	dst := reflect.New(reflect.SliceOf(d.typ))
	if err := pgxscan.Select(ctx, q, dst.Interface(), sql, args...); err != nil {
		return reflect.Value{}, err
	}
	return dst.Elem(), nil
}

func distinctKeys(owners []reflect.Value, index []int) []any {
	seen := make(map[any]struct{}, len(owners))
	keys := make([]any, 0, len(owners))
	for _, o := range owners {
		k, ok := keyOf(o.FieldByIndex(index))
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// keyOf dereferences nullable keys; a nil key never matches.
func keyOf(v reflect.Value) (any, bool) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return v.Interface(), true
}

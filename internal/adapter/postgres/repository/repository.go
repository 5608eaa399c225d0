// Package repository provides a generic PostgreSQL repository driven by
// entity descriptors: filters, dotted-path ordering and eager-load joins are
// passed as data and translated into SQL with squirrel.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/samber/oops"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
	"github.com/heartmarshall/classroom-backend/internal/domain"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ErrUnfiltered guards against UPDATE or DELETE without a WHERE clause.
var ErrUnfiltered = errors.New("refusing to update or delete without filters")

// Params describes one fetch.
type Params struct {
	Filters  Filters
	Ordering []string
	Join     []string
	Offset   uint64
	// Limit 0 means no limit.
	Limit uint64
}

// Repository is the generic data access object for one entity type.
// It queries through the transaction in ctx when there is one.
type Repository[T Entity] struct {
	db   postgres.DB
	desc *Descriptor
}

// New creates a Repository for T.
func New[T Entity](db postgres.DB) *Repository[T] {
	return &Repository[T]{db: db, desc: Describe[T]()}
}

// Descriptor returns the entity descriptor.
func (r *Repository[T]) Descriptor() *Descriptor { return r.desc }

// Increment returns a value expression adding delta to column, for Update.
func Increment(col string, delta int) squirrel.Sqlizer {
	return squirrel.Expr(quote(col)+" + ?", delta)
}

func (r *Repository[T]) q(ctx context.Context) postgres.Querier {
	return postgres.QuerierFromCtx(ctx, r.db)
}

func (r *Repository[T]) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return oops.
		In("repository").
		With("table", r.desc.Table).
		With("operation", op).
		Wrap(postgres.MapError(err, r.desc.Table))
}

func (r *Repository[T]) notFound(op string) error {
	return r.fail(op, domain.ErrNotFound)
}

func (r *Repository[T]) selectSQL(p Params) (string, []any, error) {
	s := newScope(r.desc)
	preds, err := s.where(p.Filters)
	if err != nil {
		return "", nil, err
	}
	order, err := s.orderBy(p.Ordering)
	if err != nil {
		return "", nil, err
	}

	b := s.applySelect(
		psql.Select(r.desc.qualifiedColumns(r.desc.Table)...).From(quote(r.desc.Table)),
		preds,
	).OrderBy(order...)
	if p.Limit > 0 {
		b = b.Limit(p.Limit)
	}
	if p.Offset > 0 {
		b = b.Offset(p.Offset)
	}
	return b.ToSql()
}

// Fetch returns the rows matching p, with every relation named in p.Join
// loaded.
func (r *Repository[T]) Fetch(ctx context.Context, p Params) ([]T, error) {
	tree, err := parseJoins(r.desc, p.Join)
	if err != nil {
		return nil, err
	}
	sql, args, err := r.selectSQL(p)
	if err != nil {
		return nil, err
	}

	q := r.q(ctx)
	var rows []T
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, r.fail("fetch", err)
	}
	if rows == nil {
		rows = []T{}
	}

	if len(tree.children) > 0 {
		owners := make([]reflect.Value, len(rows))
		for i := range rows {
			owners[i] = reflect.ValueOf(&rows[i]).Elem()
		}
		if err := eagerLoad(ctx, q, r.desc, owners, tree); err != nil {
			return nil, r.fail("fetch", err)
		}
	}
	return rows, nil
}

// Retrieve returns the first row matching filters. A missing row is
// domain.ErrNotFound.
func (r *Repository[T]) Retrieve(ctx context.Context, filters Filters, join ...string) (*T, error) {
	rows, err := r.Fetch(ctx, Params{Filters: filters, Join: join, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, r.notFound("retrieve")
	}
	return &rows[0], nil
}

// Count returns the number of rows matching filters.
func (r *Repository[T]) Count(ctx context.Context, filters Filters) (int, error) {
	s := newScope(r.desc)
	preds, err := s.where(filters)
	if err != nil {
		return 0, err
	}
	sql, args, err := s.applySelect(psql.Select("COUNT(*)").From(quote(r.desc.Table)), preds).ToSql()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := r.q(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, r.fail("count", err)
	}
	return int(n), nil
}

// Exists reports whether any row matches filters.
func (r *Repository[T]) Exists(ctx context.Context, filters Filters) (bool, error) {
	s := newScope(r.desc)
	preds, err := s.where(filters)
	if err != nil {
		return false, err
	}
	inner, args, err := s.applySelect(psql.Select("1").From(quote(r.desc.Table)), preds).ToSql()
	if err != nil {
		return false, err
	}

	var ok bool
	if err := r.q(ctx).QueryRow(ctx, "SELECT EXISTS("+inner+")", args...).Scan(&ok); err != nil {
		return false, r.fail("exists", err)
	}
	return ok, nil
}

// Create inserts a row from attrs and returns it as stored. A unique
// violation is domain.ErrAlreadyExists.
func (r *Repository[T]) Create(ctx context.Context, attrs map[string]any, join ...string) (*T, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("create %s: %w: no values", r.desc.Table, ErrInvalidFilter)
	}
	tree, err := parseJoins(r.desc, join)
	if err != nil {
		return nil, err
	}

	cols, vals, err := r.columnsAndValues(attrs)
	if err != nil {
		return nil, err
	}
	sql, args, err := psql.
		Insert(quote(r.desc.Table)).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING " + strings.Join(r.desc.quotedColumns(), ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}

	q := r.q(ctx)
	var row T
	if err := pgxscan.Get(ctx, q, &row, sql, args...); err != nil {
		return nil, r.fail("create", err)
	}
	if err := r.load(ctx, q, &row, tree); err != nil {
		return nil, r.fail("create", err)
	}
	return &row, nil
}

// Update applies values to the rows matching filters and returns the
// affected row count. Values may be squirrel.Sqlizer expressions
// (see Increment). updated_at is stamped automatically.
func (r *Repository[T]) Update(ctx context.Context, filters Filters, values map[string]any) (int64, error) {
	b, err := r.updateBuilder(filters, values)
	if err != nil {
		return 0, err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, r.fail("update", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateAndReload applies values like Update and returns the first updated
// row. No matching row is domain.ErrNotFound.
func (r *Repository[T]) UpdateAndReload(ctx context.Context, filters Filters, values map[string]any, join ...string) (*T, error) {
	tree, err := parseJoins(r.desc, join)
	if err != nil {
		return nil, err
	}
	b, err := r.updateBuilder(filters, values)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.Suffix("RETURNING " + strings.Join(r.desc.quotedColumns(), ", ")).ToSql()
	if err != nil {
		return nil, err
	}

	q := r.q(ctx)
	var rows []T
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, r.fail("update_and_reload", err)
	}
	if len(rows) == 0 {
		return nil, r.notFound("update_and_reload")
	}
	row := &rows[0]
	if err := r.load(ctx, q, row, tree); err != nil {
		return nil, r.fail("update_and_reload", err)
	}
	return row, nil
}

// Delete removes the rows matching filters and returns the count.
func (r *Repository[T]) Delete(ctx context.Context, filters Filters) (int64, error) {
	where, err := r.mutationWhere(filters)
	if err != nil {
		return 0, err
	}
	sql, args, err := psql.Delete(quote(r.desc.Table)).Where(where).ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, r.fail("delete", err)
	}
	return tag.RowsAffected(), nil
}

// Refresh re-reads entity by primary key.
func (r *Repository[T]) Refresh(ctx context.Context, entity *T, join ...string) (*T, error) {
	pk, ok := r.desc.Value(entity, r.desc.PK)
	if !ok {
		return nil, fmt.Errorf("refresh %s: nil entity", r.desc.Table)
	}
	return r.Retrieve(ctx, Filters{r.desc.PK: pk}, join...)
}

func (r *Repository[T]) load(ctx context.Context, q postgres.Querier, row *T, tree *joinNode) error {
	if len(tree.children) == 0 {
		return nil
	}
	return eagerLoad(ctx, q, r.desc, []reflect.Value{reflect.ValueOf(row).Elem()}, tree)
}

func (r *Repository[T]) updateBuilder(filters Filters, values map[string]any) (squirrel.UpdateBuilder, error) {
	if len(values) == 0 {
		return squirrel.UpdateBuilder{}, fmt.Errorf("update %s: %w: no values", r.desc.Table, ErrInvalidFilter)
	}
	where, err := r.mutationWhere(filters)
	if err != nil {
		return squirrel.UpdateBuilder{}, err
	}
	cols, vals, err := r.columnsAndValues(values)
	if err != nil {
		return squirrel.UpdateBuilder{}, err
	}

	b := psql.Update(quote(r.desc.Table))
	for i, c := range cols {
		b = b.Set(c, vals[i])
	}
	if _, explicit := values["updated_at"]; !explicit && r.desc.Has("updated_at") {
		b = b.Set(quote("updated_at"), squirrel.Expr("now()"))
	}
	return b.Where(where), nil
}

func (r *Repository[T]) mutationWhere(filters Filters) (squirrel.Sqlizer, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%s: %w", r.desc.Table, ErrUnfiltered)
	}
	s := newScope(r.desc)
	preds, err := s.where(filters)
	if err != nil {
		return nil, err
	}
	if len(s.joins) > 0 {
		return s.keySubquery(preds)
	}
	return squirrel.And(preds), nil
}

func (r *Repository[T]) columnsAndValues(attrs map[string]any) ([]string, []any, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if !r.desc.Has(k) {
			return nil, nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, k, r.desc.Table)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	cols := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = quote(k)
		vals[i] = attrs[k]
	}
	return cols, vals, nil
}

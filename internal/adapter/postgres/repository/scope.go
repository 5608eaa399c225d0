package repository

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
)

var (
	// ErrUnknownField is returned when a filter, ordering, join or value key
	// does not resolve on the entity. It signals a programming error.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidFilter is returned for an unsupported lookup or a value of
	// the wrong shape for its lookup.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Filters maps "field" or "field__lookup" to a value. A field may be a dotted
// path through belongs-to relations ("room.name__icontains").
//
// Lookups: exact (default), ne, gt, gte, lt, lte, in, icontains, isnull.
type Filters map[string]any

const lookupSep = "__"

func splitLookup(key string) (field, lookup string) {
	if i := strings.LastIndex(key, lookupSep); i > 0 {
		return key[:i], key[i+len(lookupSep):]
	}
	return key, "exact"
}

// scope collects the LEFT JOINs needed to resolve dotted field paths against
// one base entity. Each path prefix is joined once under an alias built from
// its relation names ("assigned_room_post__room").
type scope struct {
	desc    *Descriptor
	joins   []string
	aliases map[string]bool
}

func newScope(d *Descriptor) *scope {
	return &scope{desc: d, aliases: map[string]bool{}}
}

// resolve returns the qualified column for a possibly dotted field path.
func (s *scope) resolve(path string) (string, error) {
	parts := strings.Split(path, ".")
	cur, alias := s.desc, s.desc.Table

	for i, name := range parts[:len(parts)-1] {
		rel, ok := cur.relations[name]
		if !ok || rel.Kind != BelongsTo {
			return "", fmt.Errorf("%w: %q on %s", ErrUnknownField, path, s.desc.Table)
		}
		next := strings.Join(parts[:i+1], lookupSep)
		if !s.aliases[next] {
			s.aliases[next] = true
			s.joins = append(s.joins, fmt.Sprintf("%s AS %s ON %s = %s",
				quote(rel.Target.Table), quote(next),
				column(next, rel.Target.PK), column(alias, rel.Key),
			))
		}
		cur, alias = rel.Target, next
	}

	col := parts[len(parts)-1]
	if !cur.Has(col) {
		return "", fmt.Errorf("%w: %q on %s", ErrUnknownField, path, s.desc.Table)
	}
	return column(alias, col), nil
}

// where turns filters into predicates, in sorted key order so that the
// generated SQL and its arguments are deterministic.
func (s *scope) where(filters Filters) ([]squirrel.Sqlizer, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	preds := make([]squirrel.Sqlizer, 0, len(keys))
	for _, key := range keys {
		field, lookup := splitLookup(key)
		col, err := s.resolve(field)
		if err != nil {
			return nil, err
		}
		pred, err := predicate(col, lookup, filters[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func predicate(col, lookup string, value any) (squirrel.Sqlizer, error) {
	switch lookup {
	case "exact":
		if isList(value) {
			return nil, fmt.Errorf("%w: exact lookup takes a scalar, use __in", ErrInvalidFilter)
		}
		return squirrel.Eq{col: value}, nil
	case "ne":
		return squirrel.NotEq{col: value}, nil
	case "gt":
		return squirrel.Gt{col: value}, nil
	case "gte":
		return squirrel.GtOrEq{col: value}, nil
	case "lt":
		return squirrel.Lt{col: value}, nil
	case "lte":
		return squirrel.LtOrEq{col: value}, nil
	case "in":
		if !isList(value) {
			return nil, fmt.Errorf("%w: in lookup takes a slice, got %T", ErrInvalidFilter, value)
		}
		return squirrel.Eq{col: value}, nil
	case "icontains":
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: icontains lookup takes a string, got %T", ErrInvalidFilter, value)
		}
		return squirrel.ILike{col: "%" + escapeLike(str) + "%"}, nil
	case "isnull":
		isNull, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: isnull lookup takes a bool, got %T", ErrInvalidFilter, value)
		}
		if isNull {
			return squirrel.Eq{col: nil}, nil
		}
		return squirrel.NotEq{col: nil}, nil
	}
	return nil, fmt.Errorf("%w: unsupported lookup %q", ErrInvalidFilter, lookup)
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// orderBy renders ordering terms ("-created_at", "room.name"). The primary
// key is appended as a tiebreaker so pages are stable.
func (s *scope) orderBy(ordering []string) ([]string, error) {
	out := make([]string, 0, len(ordering)+1)
	pk := column(s.desc.Table, s.desc.PK)
	hasPK := false

	for _, term := range ordering {
		dir := "ASC"
		path := term
		if strings.HasPrefix(term, "-") {
			dir, path = "DESC", term[1:]
		}
		col, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		if col == pk {
			hasPK = true
		}
		out = append(out, col+" "+dir)
	}
	if !hasPK {
		out = append(out, pk+" ASC")
	}
	return out, nil
}

func (s *scope) applySelect(b squirrel.SelectBuilder, preds []squirrel.Sqlizer) squirrel.SelectBuilder {
	for _, j := range s.joins {
		b = b.LeftJoin(j)
	}
	for _, p := range preds {
		b = b.Where(p)
	}
	return b
}

// keySubquery restricts an UPDATE or DELETE to the rows matched through
// joins, which neither statement can express directly.
func (s *scope) keySubquery(preds []squirrel.Sqlizer) (squirrel.Sqlizer, error) {
	inner := s.applySelect(
		squirrel.Select(column(s.desc.Table, s.desc.PK)).From(quote(s.desc.Table)),
		preds,
	)
	sql, args, err := inner.ToSql()
	if err != nil {
		return nil, err
	}
	return squirrel.Expr(column(s.desc.Table, s.desc.PK)+" IN ("+sql+")", args...), nil
}

package repository

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Entity is a persisted struct. Columns come from `db` tags, relations from
// `rel:"name,key"` tags on pointer (belongs-to) or slice (has-many) fields.
type Entity interface {
	TableName() string
}

// RelationKind distinguishes the two supported relationship shapes.
type RelationKind int

const (
	// BelongsTo: the owner holds the foreign key, the field is *Target.
	BelongsTo RelationKind = iota
	// HasMany: the target holds the foreign key, the field is []Target.
	HasMany
)

func (k RelationKind) String() string {
	if k == HasMany {
		return "has-many"
	}
	return "belongs-to"
}

// Relation is a named link from one entity to another.
type Relation struct {
	Name string
	Kind RelationKind
	// Key is the foreign key column: on the owner for BelongsTo, on the
	// target for HasMany.
	Key    string
	Target *Descriptor

	index []int
}

// Descriptor is the reflected metadata of one entity type.
type Descriptor struct {
	Table string
	PK    string

	columns   []string
	colIndex  map[string][]int
	relations map[string]*Relation
	typ       reflect.Type
}

// managed columns are maintained by the repository and the database.
var managed = map[string]bool{"id": true, "created_at": true, "updated_at": true}

var (
	descMu    sync.Mutex
	descCache = map[reflect.Type]*Descriptor{}
)

// Describe returns the cached descriptor of T. It panics if T is not a struct
// or its tags are malformed: both are programming errors.
func Describe[T Entity]() *Descriptor {
	descMu.Lock()
	defer descMu.Unlock()
	return describeLocked(reflect.TypeOf((*T)(nil)).Elem())
}

func describeLocked(t reflect.Type) *Descriptor {
	if d, ok := descCache[t]; ok {
		return d
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("repository: %s is not a struct", t))
	}
	ent, ok := reflect.New(t).Elem().Interface().(Entity)
	if !ok {
		panic(fmt.Sprintf("repository: %s does not implement TableName", t))
	}

	d := &Descriptor{
		Table:     ent.TableName(),
		PK:        "id",
		colIndex:  map[string][]int{},
		relations: map[string]*Relation{},
		typ:       t,
	}
	// Registered before relations are walked so that cycles resolve to d.
	descCache[t] = d
	built := false
	defer func() {
		if !built {
			delete(descCache, t)
		}
	}()

	d.collect(t, nil)

	if _, ok := d.colIndex[d.PK]; !ok {
		panic(fmt.Sprintf("repository: %s has no %q column", t, d.PK))
	}
	built = true
	return d
}

func (d *Descriptor) collect(t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		index := append(slices.Clone(prefix), i)

		if rel, ok := f.Tag.Lookup("rel"); ok {
			d.addRelation(f, rel, index)
			continue
		}

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
			d.collect(f.Type, index)
			continue
		}

		col := f.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		d.columns = append(d.columns, col)
		d.colIndex[col] = index
	}
}

func (d *Descriptor) addRelation(f reflect.StructField, tag string, index []int) {
	name, key, ok := strings.Cut(tag, ",")
	if !ok || name == "" || key == "" {
		panic(fmt.Sprintf("repository: %s.%s: rel tag must be \"name,key\", got %q", d.typ, f.Name, tag))
	}

	rel := &Relation{Name: name, Key: key, index: index}
	switch f.Type.Kind() {
	case reflect.Pointer:
		rel.Kind = BelongsTo
		rel.Target = describeLocked(f.Type.Elem())
	case reflect.Slice:
		rel.Kind = HasMany
		rel.Target = describeLocked(f.Type.Elem())
	default:
		panic(fmt.Sprintf("repository: %s.%s: relation must be a pointer or slice", d.typ, f.Name))
	}
	d.relations[name] = rel
}

// Has reports whether field is a column of the entity.
func (d *Descriptor) Has(field string) bool {
	_, ok := d.colIndex[field]
	return ok
}

// Writable reports whether callers may set field directly.
func (d *Descriptor) Writable(field string) bool {
	return d.Has(field) && !managed[field]
}

// Fields returns the column names in declaration order.
func (d *Descriptor) Fields() []string {
	return slices.Clone(d.columns)
}

// Relation looks up a relation by name.
func (d *Descriptor) Relation(name string) (*Relation, bool) {
	r, ok := d.relations[name]
	return r, ok
}

// Pick returns the subset of attrs naming writable columns. Unknown keys and
// managed columns (id, created_at, updated_at) are dropped silently.
func (d *Descriptor) Pick(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if d.Writable(k) {
			out[k] = v
		}
	}
	return out
}

// Value returns the value of column on entity, which must be a pointer to the
// described struct.
func (d *Descriptor) Value(entity any, column string) (any, bool) {
	idx, ok := d.colIndex[column]
	if !ok {
		return nil, false
	}
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Type() != d.typ {
		return nil, false
	}
	return v.FieldByIndex(idx).Interface(), true
}

func (d *Descriptor) qualifiedColumns(alias string) []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = column(alias, c)
	}
	return out
}

func (d *Descriptor) quotedColumns() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = quote(c)
	}
	return out
}

// quote renders a PostgreSQL identifier. Every identifier is quoted since
// some columns ("order") are reserved words.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func column(alias, col string) string {
	return quote(alias) + "." + quote(col)
}

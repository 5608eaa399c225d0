package crud

import "context"

// Attrs is a candidate attribute set: field name to value.
type Attrs map[string]any

// Clone returns a shallow copy.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Operation names.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpFetch      = "fetch"
	OpRetrieve   = "retrieve"
	OpBulkCreate = "bulk_create"
)

// Action is one frame of the operation chain carried by a context. A nested
// operation (a create issued by a bulk create) pushes its own frame; the
// caller's frame stays reachable through Parent.
type Action struct {
	Name   string
	Entity string
	// ID of the targeted row for update, delete and retrieve.
	ID    int64
	Attrs Attrs
	// Current is the stored entity an update or delete applies to.
	Current any

	parent *Action
}

// Parent returns the enclosing frame, or nil for the outermost one.
func (a *Action) Parent() *Action { return a.parent }

type actionKey struct{}

// WithAction pushes a frame onto ctx's action chain.
func WithAction(ctx context.Context, a Action) context.Context {
	if parent, ok := ActionFromCtx(ctx); ok {
		a.parent = parent
	}
	return context.WithValue(ctx, actionKey{}, &a)
}

// ActionFromCtx returns the innermost frame.
func ActionFromCtx(ctx context.Context) (*Action, bool) {
	a, ok := ctx.Value(actionKey{}).(*Action)
	return a, ok && a != nil
}

// OperationFromCtx returns the innermost operation name, or "".
func OperationFromCtx(ctx context.Context) string {
	if a, ok := ActionFromCtx(ctx); ok {
		return a.Name
	}
	return ""
}

// AttrsFor returns the attributes of the innermost frame named op.
func AttrsFor(ctx context.Context, op string) (Attrs, bool) {
	for a, ok := ActionFromCtx(ctx); ok && a != nil; a = a.parent {
		if a.Name == op {
			return a.Attrs, true
		}
	}
	return nil, false
}

// CurrentOf returns the stored entity of the innermost frame if it is a *T.
func CurrentOf[T any](ctx context.Context) (*T, bool) {
	a, ok := ActionFromCtx(ctx)
	if !ok {
		return nil, false
	}
	cur, ok := a.Current.(*T)
	return cur, ok && cur != nil
}

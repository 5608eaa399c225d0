package crud

import (
	"context"
	"errors"

	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// BulkError is the rejection of one bulk item.
type BulkError struct {
	Index  int
	Fields map[string]string
	Err    error
}

// BulkResult holds the outcome of a bulk create. Created keeps input order
// of the accepted items.
type BulkResult[T any] struct {
	Created []*T
	Errors  []BulkError
}

// OK reports whether every item was created.
func (r BulkResult[T]) OK() bool { return len(r.Errors) == 0 }

// BulkCreate creates items one by one. Each item runs through the full
// create pipeline in its own transaction; a rejected item is recorded and
// the rest proceed. An infrastructure failure stops the batch and is
// returned together with what was created so far.
func (s *Service[T]) BulkCreate(ctx context.Context, items []Attrs) (BulkResult[T], error) {
	ctx = WithAction(ctx, Action{Name: OpBulkCreate, Entity: s.name})

	result := BulkResult[T]{Created: make([]*T, 0, len(items))}
	for i, attrs := range items {
		created, err := s.Create(ctx, attrs)
		if err == nil {
			result.Created = append(result.Created, created)
			continue
		}
		if !rejection(err) {
			s.finish(ctx, OpBulkCreate, 0, err)
			return result, err
		}
		result.Errors = append(result.Errors, BulkError{
			Index:  i,
			Fields: domain.FieldsOf(err),
			Err:    err,
		})
	}

	s.log.InfoContext(ctx, s.name+" "+OpBulkCreate,
		"created", len(result.Created),
		"rejected", len(result.Errors),
	)
	s.observe(OpBulkCreate, nil)
	return result, nil
}

func rejection(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrNotFound)
}

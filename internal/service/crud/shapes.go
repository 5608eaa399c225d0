package crud

import "fmt"

// Shape maps an entity to its output representation.
type Shape[T any] func(*T) any

// Shapes declares the output shape per operation name.
type Shapes[T any] map[string]Shape[T]

func (s Shapes[T]) serialize(entity, op string, v *T) any {
	shape, ok := s[op]
	if !ok {
		panic(fmt.Sprintf("crud: %s declares no output shape for %q", entity, op))
	}
	if v == nil {
		return nil
	}
	return shape(v)
}

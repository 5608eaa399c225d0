package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"slices"
	"strings"
	"unicode/utf8"
)

// Text requires a non-blank string of at most max characters (max 0 means
// unbounded).
func Text(max int) FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		s, ok := value.(string)
		if !ok {
			return false, "must be a string", nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return false, "required", nil
		}
		if max > 0 && utf8.RuneCountInString(s) > max {
			return false, fmt.Sprintf("max %d characters", max), nil
		}
		return true, "", nil
	}
}

// OptionalText accepts nil, or a string of at most max characters.
func OptionalText(max int) FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		if value == nil || isNilPtr(value) {
			return true, "", nil
		}
		s, ok := stringValue(value)
		if !ok {
			return false, "must be a string", nil
		}
		if max > 0 && utf8.RuneCountInString(strings.TrimSpace(s)) > max {
			return false, fmt.Sprintf("max %d characters", max), nil
		}
		return true, "", nil
	}
}

// MinLength requires a string of at least n characters.
func MinLength(n int) FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		s, ok := value.(string)
		if !ok {
			return false, "must be a string", nil
		}
		if utf8.RuneCountInString(s) < n {
			return false, fmt.Sprintf("min %d characters", n), nil
		}
		return true, "", nil
	}
}

// Email requires a bare address (no display name).
func Email() FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return false, "required", nil
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return false, "invalid email", nil
		}
		return true, "", nil
	}
}

// OneOf requires a string (or string-kinded enum) from allowed.
func OneOf(allowed ...string) FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		s, ok := stringValue(value)
		if !ok || !slices.Contains(allowed, s) {
			return false, "must be one of " + strings.Join(allowed, ", "), nil
		}
		return true, "", nil
	}
}

// Int requires an integer in [min, max] for a NOT NULL column.
func Int(min, max int64) FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		n, ok := Int64(value)
		if !ok {
			return false, "must be an integer", nil
		}
		if n < min || n > max {
			return false, fmt.Sprintf("must be between %d and %d", min, max), nil
		}
		return true, "", nil
	}
}

// IntRange is Int for nullable columns: nil and nil pointers pass.
func IntRange(min, max int64) FieldValidator {
	check := Int(min, max)
	return func(ctx context.Context, value any) (bool, string, error) {
		if value == nil || isNilPtr(value) {
			return true, "", nil
		}
		return check(ctx, value)
	}
}

// ID requires a positive integer identifier.
func ID() FieldValidator {
	return func(_ context.Context, value any) (bool, string, error) {
		n, ok := Int64(value)
		if !ok || n <= 0 {
			return false, "required", nil
		}
		return true, "", nil
	}
}

// Immutable rejects the field on update.
func Immutable() FieldValidator {
	return func(ctx context.Context, _ any) (bool, string, error) {
		if OperationFromCtx(ctx) == OpUpdate {
			return false, "cannot be changed", nil
		}
		return true, "", nil
	}
}

// TrimSpace returns a cross-field hook that stores the named text fields
// trimmed, matching what Text and OptionalText measured.
func TrimSpace(fields ...string) CrossFieldHook {
	return func(_ context.Context, attrs Attrs) (Attrs, error) {
		for _, f := range fields {
			switch v := attrs[f].(type) {
			case string:
				attrs[f] = strings.TrimSpace(v)
			case *string:
				if v != nil {
					trimmed := strings.TrimSpace(*v)
					attrs[f] = &trimmed
				}
			}
		}
		return attrs, nil
	}
}

// Int64 converts the integer kinds a decoded payload may carry. Pointers are
// followed; nil, fractions and out-of-range unsigned values are rejected.
func Int64(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return fromUint(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return fromUint(n)
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case *int:
		if n != nil {
			return int64(*n), true
		}
	case *int32:
		if n != nil {
			return int64(*n), true
		}
	case *int64:
		if n != nil {
			return *n, true
		}
	}
	return 0, false
}

func fromUint(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func fromFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func stringValue(value any) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case *string:
		if s != nil {
			return *s, true
		}
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

func isNilPtr(value any) bool {
	switch p := value.(type) {
	case *string:
		return p == nil
	case *int32:
		return p == nil
	case *int64:
		return p == nil
	case *int:
		return p == nil
	}
	return false
}

package crud

import (
	"context"

	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// AuthorStamper records the acting user on write. Create stamps CreatedBy
// and UpdatedBy, update stamps UpdatedBy. Empty column names are skipped.
// Values supplied by the caller for these columns are overwritten.
type AuthorStamper struct {
	CreatedBy string
	UpdatedBy string
}

// Stamp is a CrossFieldHook.
func (s AuthorStamper) Stamp(ctx context.Context, attrs Attrs) (Attrs, error) {
	op := OperationFromCtx(ctx)
	if op != OpCreate && op != OpUpdate {
		return attrs, nil
	}

	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	if op == OpCreate && s.CreatedBy != "" {
		attrs[s.CreatedBy] = userID
	}
	if s.UpdatedBy != "" {
		attrs[s.UpdatedBy] = userID
	}
	return attrs, nil
}

package utils

import (
	"context"

	"org-system/pkg/contextkeys"
	apperrors "org-system/pkg/errors"
)

// UserIDFromCtx достает идентификатор пользователя, положенный auth-мидлвэром.
func UserIDFromCtx(ctx context.Context) (uint64, error) {
	userID, ok := ctx.Value(contextkeys.UserIDKey).(uint64)
	if !ok || userID == 0 {
		return 0, apperrors.ErrUserIDNotFoundInContext
	}
	return userID, nil
}

package users

import (
	"context"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

// FindPasswordUser resolves a database-connection login, which may be either a
// username or an email. A nil user means no match.
func FindPasswordUser(ctx context.Context, repo UserRepo, tenantID, login string) (*User, error) {
	user, err := repo.GetByUsername(ctx, tenantID, ProviderPassword, login)
	if err == nil {
		return user, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	user, err = repo.GetByEmail(ctx, tenantID, ProviderPassword, login)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

package users

import "context"

// UserRepo persists users. Create and Update return errors.ErrConflict when the
// (tenant, provider, username) triple is already held by another user.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, tenantID, userID string) error
	Get(ctx context.Context, tenantID, userID string) (*User, error)
	GetByEmail(ctx context.Context, tenantID, provider, email string) (*User, error)
	GetByUsername(ctx context.Context, tenantID, provider, username string) (*User, error)
	List(ctx context.Context, tenantID string) ([]*User, error)
}

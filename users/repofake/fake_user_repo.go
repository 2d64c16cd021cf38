package fakeuserrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]users.User // tenantID/userID -> user
	lock  sync.RWMutex

	// BeforeWrite, when set, runs inside Create/Update before the uniqueness
	// check. Tests use it to simulate a concurrent writer.
	BeforeWrite func(user *users.User)
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]users.User),
	}
}

func key(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	if ur.BeforeWrite != nil {
		ur.BeforeWrite(user)
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, exists := ur.users[key(user.TenantID, user.ID)]; exists {
		return apperrors.ErrConflict
	}
	if ur.usernameTaken(user) {
		return apperrors.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	ur.users[key(user.TenantID, user.ID)] = *user
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	if ur.BeforeWrite != nil {
		ur.BeforeWrite(user)
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, exists := ur.users[key(user.TenantID, user.ID)]; !exists {
		return apperrors.ErrNotFound
	}
	if ur.usernameTaken(user) {
		return apperrors.ErrConflict
	}
	user.UpdatedAt = time.Now()
	ur.users[key(user.TenantID, user.ID)] = *user
	return nil
}

// usernameTaken must be called with the write lock held.
func (ur *FakeUserRepo) usernameTaken(user *users.User) bool {
	if user.Username == "" {
		return false
	}
	wanted := users.NormalizeUsername(user.Username)
	for _, u := range ur.users {
		if u.TenantID == user.TenantID && u.ID != user.ID && u.Provider == user.Provider &&
			users.NormalizeUsername(u.Username) == wanted {
			return true
		}
	}
	return false
}

func (ur *FakeUserRepo) Delete(_ context.Context, tenantID, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if _, ok := ur.users[key(tenantID, userID)]; !ok {
		return apperrors.ErrNotFound
	}
	delete(ur.users, key(tenantID, userID))
	return nil
}

func (ur *FakeUserRepo) Get(_ context.Context, tenantID, userID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[key(tenantID, userID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, tenantID, provider, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	for _, u := range ur.users {
		if u.TenantID == tenantID && u.Provider == provider && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, tenantID, provider, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	wanted := users.NormalizeUsername(username)
	if wanted == "" {
		return nil, apperrors.ErrNotFound
	}
	for _, u := range ur.users {
		if u.TenantID == tenantID && u.Provider == provider && users.NormalizeUsername(u.Username) == wanted {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (ur *FakeUserRepo) List(_ context.Context, tenantID string) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0)
	for _, u := range ur.users {
		if u.TenantID != tenantID {
			continue
		}
		u := u
		userList = append(userList, &u)
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].ID < userList[j].ID
	})
	return userList, nil
}

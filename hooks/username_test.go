package hooks_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-core/users/repofake"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

func createUser(t *testing.T, repo *fakeuserrepo.FakeUserRepo, u users.User) *users.User {
	u.TenantID = testTenant
	if u.Provider == "" {
		u.Provider = users.ProviderPassword
	}
	require.NoError(t, repo.Create(context.Background(), &u))
	return &u
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"John Doe":         "john-doe",
		"  José Ñúñez  ":   "jose-nunez",
		"--a__b..c--":      "a-b-c",
		"Ünïcödé!!!":       "unicode",
		"+1 (555) 010-999": "1-555-010-999",
		"!!!":              "",
		"":                 "",
	}
	for in, want := range cases {
		require.Equal(t, want, hooks.Slugify(in), in)
	}
}

func TestUsernameCandidates_Order(t *testing.T) {
	u := &users.User{
		Nickname:    "John Doe",
		Name:        "Johnny",
		Email:       "j.doe@example.com",
		PhoneNumber: "+15550100",
	}
	require.Equal(t, []string{"john", "john-doe", "johnny", "j-doe", "15550100"}, hooks.UsernameCandidates(u))
}

func TestEnsureUsername_TakenNameGetsNumberedVariant(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	createUser(t, repo, users.User{ID: "other", Username: "john"})
	u := createUser(t, repo, users.User{ID: "u1", Nickname: "John Doe"})

	a := hooks.NewUsernameAllocator(repo, 10)
	res, err := a.EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, hooks.AllocationAssigned, res.Outcome)
	require.Equal(t, "john2", res.Username)

	stored, err := repo.Get(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, "john2", stored.Username)
}

func TestEnsureUsername_OtherProviderDoesNotCollide(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	createUser(t, repo, users.User{ID: "g1", Username: "john", Provider: "google-oauth2"})
	u := createUser(t, repo, users.User{ID: "u1", Nickname: "John"})

	res, err := hooks.NewUsernameAllocator(repo, 10).EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, "john", res.Username)
}

func TestEnsureUsername_SkipsWhenPresent(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := createUser(t, repo, users.User{ID: "u1", Username: "already", Nickname: "John"})

	res, err := hooks.NewUsernameAllocator(repo, 10).EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, hooks.AllocationSkipped, res.Outcome)
	require.Equal(t, "already", res.Username)
}

func TestEnsureUsername_NoCandidate(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := createUser(t, repo, users.User{ID: "u1", Nickname: "!!!"})

	res, err := hooks.NewUsernameAllocator(repo, 10).EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, hooks.AllocationNoCandidate, res.Outcome)
}

// stealer makes a concurrent writer claim whatever username u1 is about to
// write, limit times.
func stealer(t *testing.T, repo *fakeuserrepo.FakeUserRepo, limit int) *int {
	stolen := 0
	inside := false
	repo.BeforeWrite = func(u *users.User) {
		if inside || u.ID != "u1" || u.Username == "" || stolen >= limit {
			return
		}
		inside = true
		defer func() { inside = false }()
		stolen++
		createUser(t, repo, users.User{ID: fmt.Sprintf("thief-%d", stolen), Username: u.Username})
	}
	return &stolen
}

func TestEnsureUsername_RetriesOnConflict(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := createUser(t, repo, users.User{ID: "u1", Nickname: "John"})
	stolen := stealer(t, repo, 1)

	var sleeps []time.Duration
	a := hooks.NewUsernameAllocator(repo, 5)
	a.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	res, err := a.EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, hooks.AllocationAssigned, res.Outcome)
	require.Equal(t, "john2", res.Username)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 1, *stolen)
	require.Len(t, sleeps, 1)
}

func TestEnsureUsername_ExhaustedIsObservableNoop(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	u := createUser(t, repo, users.User{ID: "u1", Nickname: "John"})
	stealer(t, repo, 100)

	sleeps := 0
	a := hooks.NewUsernameAllocator(repo, 3)
	a.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	res, err := a.EnsureUsername(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Equal(t, hooks.AllocationExhausted, res.Outcome)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 2, sleeps)

	stored, err := repo.Get(context.Background(), testTenant, u.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Username)
}

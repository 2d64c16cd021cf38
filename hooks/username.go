package hooks

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AllocationOutcome tells the caller what EnsureUsername did.
type AllocationOutcome int

const (
	// AllocationSkipped means the user already had a username.
	AllocationSkipped AllocationOutcome = iota
	AllocationAssigned
	// AllocationNoCandidate means no profile field produced a usable free name.
	AllocationNoCandidate
	// AllocationExhausted means every write attempt hit a uniqueness conflict.
	AllocationExhausted
)

func (o AllocationOutcome) String() string {
	switch o {
	case AllocationSkipped:
		return "skipped"
	case AllocationAssigned:
		return "assigned"
	case AllocationNoCandidate:
		return "no_candidate"
	case AllocationExhausted:
		return "exhausted"
	}
	return "unknown"
}

type AllocationResult struct {
	Outcome  AllocationOutcome
	Username string
	Attempts int
}

// UsernameAllocator assigns a unique username to users that lack one. Uniqueness
// is enforced by the repo; the allocator only retries when a concurrent writer
// wins the race for the same name.
type UsernameAllocator struct {
	Users      users.UserRepo
	MaxRetries int
	Backoff    time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

func NewUsernameAllocator(userRepo users.UserRepo, maxRetries int) *UsernameAllocator {
	return &UsernameAllocator{
		Users:      userRepo,
		MaxRetries: maxRetries,
		Backoff:    10 * time.Millisecond,
		Sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *UsernameAllocator) EnsureUsername(ctx context.Context, tenantID, userID string) (AllocationResult, error) {
	maxRetries := a.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		user, err := a.Users.Get(ctx, tenantID, userID)
		if err != nil {
			return AllocationResult{Attempts: attempt}, errors.Wrap(err, "[UsernameAllocator.EnsureUsername] Get")
		}
		if user.Username != "" {
			return AllocationResult{Outcome: AllocationSkipped, Username: user.Username, Attempts: attempt}, nil
		}

		candidate, err := a.available(ctx, user, maxRetries)
		if err != nil {
			return AllocationResult{Attempts: attempt}, err
		}
		if candidate == "" {
			return AllocationResult{Outcome: AllocationNoCandidate, Attempts: attempt}, nil
		}

		user.Username = candidate
		err = a.Users.Update(ctx, user)
		if err == nil {
			return AllocationResult{Outcome: AllocationAssigned, Username: candidate, Attempts: attempt}, nil
		}
		if !apperrors.Is(err, apperrors.ErrConflict) {
			return AllocationResult{Attempts: attempt}, errors.Wrap(err, "[UsernameAllocator.EnsureUsername] Update")
		}

		log.Debug().Str("tenant_id", tenantID).Str("user_id", userID).Str("username", candidate).
			Int("attempt", attempt).Msg("username claimed concurrently, retrying")
		if attempt < maxRetries && a.Sleep != nil {
			if err := a.Sleep(ctx, a.Backoff); err != nil {
				return AllocationResult{Attempts: attempt}, err
			}
		}
	}

	log.Warn().Str("tenant_id", tenantID).Str("user_id", userID).Int("max_retries", maxRetries).
		Msg("username allocation exhausted")
	return AllocationResult{Outcome: AllocationExhausted, Attempts: maxRetries}, nil
}

// available tries each candidate and its numbered variants (name, name2, ...).
func (a *UsernameAllocator) available(ctx context.Context, user *users.User, maxVariants int) (string, error) {
	for _, base := range UsernameCandidates(user) {
		for n := 1; n <= maxVariants; n++ {
			name := base
			if n > 1 {
				name = base + strconv.Itoa(n)
			}
			_, err := a.Users.GetByUsername(ctx, user.TenantID, user.Provider, name)
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return name, nil
			}
			if err != nil {
				return "", errors.Wrap(err, "[UsernameAllocator.available] GetByUsername")
			}
		}
	}
	return "", nil
}

// UsernameCandidates derives base usernames from nickname, name, the email
// local part and the phone number, in that order. Nickname and name contribute
// their first word before the whole value.
func UsernameCandidates(user *users.User) []string {
	var raw []string
	for _, v := range []string{user.Nickname, user.Name} {
		if fields := strings.Fields(v); len(fields) > 1 {
			raw = append(raw, fields[0])
		}
		raw = append(raw, v)
	}
	if local, _, ok := strings.Cut(user.Email, "@"); ok {
		raw = append(raw, local)
	}
	raw = append(raw, user.PhoneNumber)

	var out []string
	seen := map[string]struct{}{}
	for _, r := range raw {
		s := Slugify(r)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Slugify lowercases s, strips diacritics and collapses every run of
// characters outside [a-z0-9] into one hyphen, trimmed at both ends.
func Slugify(s string) string {
	// transformers carry state, so one chain per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripMarks, s)
	if err != nil {
		plain = s
	}
	plain = strings.ToLower(plain)

	var b strings.Builder
	hyphen := false
	for _, r := range plain {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen {
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

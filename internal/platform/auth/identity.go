package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised on storefront accounts.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// ErrNoProfileLoader is returned by Profile when no loader was attached.
var ErrNoProfileLoader = errors.New("auth: profile loader not configured")

// ProfileLoader fetches the Firebase user record backing a UID.
type ProfileLoader func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

// Identity is the authenticated caller extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
	Locale string

	token *firebaseauth.Token

	loadProfile ProfileLoader
	once        sync.Once
	profile     *firebaseauth.UserRecord
	profileErr  error
}

// Token returns the decoded Firebase ID token.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity carries the given role. Comparison is
// case-insensitive.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = canonRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Profile loads the Firebase user record on first call and caches the result
// for the lifetime of the identity.
func (i *Identity) Profile(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.loadProfile == nil {
		return nil, ErrNoProfileLoader
	}

	i.once.Do(func() {
		i.profile, i.profileErr = i.loadProfile(ctx, i.UID)
	})

	return i.profile, i.profileErr
}

type identityKey struct{}

// WithIdentity stores the identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity placed by RequireFirebaseAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

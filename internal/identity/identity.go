package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/sqlchat/sqlchat/internal/observability"
)

const RoleAdmin = "admin"

type Principal struct {
	UserID int64
	Name   string
	Roles  []string
}

func (p Principal) HasRole(role string) bool {
	for _, candidate := range p.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// Outcome is either Authenticated or Rejected.
type Outcome interface {
	outcome()
}

type Authenticated struct {
	Principal Principal
}

type Rejected struct {
	Reason string
}

func (Authenticated) outcome() {}
func (Rejected) outcome()      {}

type Authenticator interface {
	Authenticate(ctx context.Context, name, secret string) Outcome
}

type staticUser struct {
	secret    []byte
	principal Principal
}

// StaticAuthenticator serves a fixed user list parsed from
// "name:secret:userID:role|role" entries separated by commas.
type StaticAuthenticator struct {
	users  map[string]staticUser
	logger *slog.Logger
}

func NewStaticAuthenticator(spec string, logger *slog.Logger) (*StaticAuthenticator, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	authenticator := &StaticAuthenticator{users: map[string]staticUser{}, logger: logger}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return authenticator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid static user entry %q: expected name:secret:userID:role|role", entry)
		}
		name := strings.TrimSpace(parts[0])
		secret := strings.TrimSpace(parts[1])
		if name == "" || secret == "" {
			return nil, fmt.Errorf("invalid static user entry %q: empty name/secret", entry)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid static user entry %q: user id: %w", entry, err)
		}
		roles := make([]string, 0)
		for _, role := range strings.Split(parts[3], "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static user entry %q: at least one role is required", entry)
		}
		sort.Strings(roles)
		authenticator.users[name] = staticUser{
			secret:    []byte(secret),
			principal: Principal{UserID: userID, Name: name, Roles: roles},
		}
	}
	return authenticator, nil
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context, name, secret string) Outcome {
	user, ok := a.users[strings.TrimSpace(name)]
	if !ok || subtle.ConstantTimeCompare(user.secret, []byte(secret)) != 1 {
		a.logger.WarnContext(ctx, "authentication failed", slog.String("user", name))
		return Rejected{Reason: "invalid credentials"}
	}
	return Authenticated{Principal: user.principal}
}

type contextKey string

const principalKey contextKey = "identity_principal"

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

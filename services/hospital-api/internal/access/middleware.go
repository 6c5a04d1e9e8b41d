package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/medibook/libs/auth"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

// ErrUnknownUser is returned by a PrincipalLoader when the token subject no longer exists.
var ErrUnknownUser = errors.New("unknown user")

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      string
	Email       string
	Name        string
	RoleType    model.RoleType
	Permissions Set
}

func (p Principal) Can(code string) bool { return p.Permissions.Has(code) }

func (p Principal) IsAdmin() bool { return p.RoleType == model.RoleAdmin }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// PrincipalLoader loads the current user record and its custom role, if any.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (model.User, *model.Role, error)
}

type Authenticator struct {
	secret string
	loader PrincipalLoader
	logger *slog.Logger
}

func NewAuthenticator(secret string, loader PrincipalLoader, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: secret, loader: loader, logger: logger}
}

// Authenticate verifies the bearer token, reloads the user and attaches a Principal whose
// permissions come from Resolve. Locked accounts are refused.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized, token missing")
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, a.secret)
		if err != nil {
			httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized, token invalid")
			return
		}

		user, role, err := a.loader.LoadPrincipal(r.Context(), claims.UserID())
		if err != nil {
			if errors.Is(err, ErrUnknownUser) {
				httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized, user not found")
				return
			}
			httpx.WriteError(w, r, a.logger, err)
			return
		}
		if user.IsLocked {
			httpx.WriteMessage(w, http.StatusForbidden, "account is locked")
			return
		}

		p := Principal{
			UserID:      user.ID,
			Email:       user.Email,
			Name:        user.Name,
			RoleType:    user.RoleType,
			Permissions: Resolve(user.RoleType, role),
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequirePermission lets the request through when the caller holds any of codes.
func RequirePermission(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized")
				return
			}
			if !p.Permissions.HasAny(codes...) {
				httpx.WriteMessage(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates on the coarse role type.
func RequireRole(roles ...model.RoleType) func(http.Handler) http.Handler {
	allowed := map[model.RoleType]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteMessage(w, http.StatusUnauthorized, "not authorized")
				return
			}
			if _, ok := allowed[p.RoleType]; !ok {
				httpx.WriteMessage(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

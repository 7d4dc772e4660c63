package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	commonmw "github.com/pulse/vidmod/common/middleware"
)

// UsernameKey is the echo context key holding the authenticated username.
// It matches the key read by the shared rate limit middleware.
const UsernameKey = commonmw.UsernameContextKey

// Identity is the authenticated caller
type Identity struct {
	Username string
}

// IdentityProvider resolves the caller of a request.
// Credential extracts the raw credential; CurrentUser validates it.
type IdentityProvider interface {
	Credential(r *http.Request) string
	CurrentUser(ctx context.Context, credential string) (*Identity, error)
}

// NewIdentityProvider selects the provider configured by cfg.Mode
func NewIdentityProvider(cfg config.AuthConfig) (IdentityProvider, error) {
	switch cfg.Mode {
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("jwt auth requires a secret")
		}
		return NewJWTProvider(cfg.JWTSecret), nil
	case "header", "":
		return HeaderProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Authenticate resolves the caller through provider and stores the username
// in the echo context. Requests without a valid identity get 401.
func Authenticate(provider IdentityProvider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := provider.Credential(c.Request())
			if credential == "" {
				return apperrors.New(apperrors.KindUnauthenticated, "middleware.Authenticate", "authentication required")
			}

			identity, err := provider.CurrentUser(c.Request().Context(), credential)
			if err != nil {
				return err
			}

			c.Set(UsernameKey, identity.Username)
			return next(c)
		}
	}
}

// GetUsername retrieves the username from the request context
// Returns empty string if not set
func GetUsername(c echo.Context) string {
	username, _ := c.Get(UsernameKey).(string)
	return username
}

// HeaderProvider trusts the X-User-ID header set by an upstream gateway
type HeaderProvider struct{}

func (HeaderProvider) Credential(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (HeaderProvider) CurrentUser(ctx context.Context, credential string) (*Identity, error) {
	return &Identity{Username: credential}, nil
}

// bearerToken returns the Authorization bearer token, falling back to the
// token query parameter used by websocket clients
func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

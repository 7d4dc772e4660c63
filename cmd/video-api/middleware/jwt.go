package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pulse/vidmod/common/apperrors"
)

// Claims carried by access tokens
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 bearer tokens with a username claim
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a provider verifying tokens signed with secret
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Credential(r *http.Request) string {
	return bearerToken(r)
}

func (p *JWTProvider) CurrentUser(ctx context.Context, credential string) (*Identity, error) {
	const op = "middleware.JWTProvider"

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, apperrors.Wrap(apperrors.KindUnauthenticated, op, msg, err)
	}
	if !token.Valid || claims.Username == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, op, "invalid token")
	}

	return &Identity{Username: claims.Username}, nil
}

// IssueToken signs a token for username valid for ttl (local runs and tests)
func (p *JWTProvider) IssueToken(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

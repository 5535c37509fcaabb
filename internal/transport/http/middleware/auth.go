package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/huddle/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller. Name is the display name carried in
// the token and is used for typing indicators.
type Identity struct {
	UserID string
	Name   string
}

// IdentityProvider resolves the caller of a request. Tokens are issued
// elsewhere; this service only verifies them.
type IdentityProvider interface {
	CurrentUser(r *http.Request) (*Identity, error)
}

// JWTProvider verifies HS256 tokens from the Authorization header or, for
// socket upgrades that cannot set headers, the token query parameter.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) CurrentUser(r *http.Request) (*Identity, error) {
	tokenStr := bearerToken(r)
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthenticated)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	name, _ := claims["name"].(string)

	return &Identity{UserID: sub, Name: name}, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Auth rejects requests without a valid identity and stores the identity in
// the request context.
func Auth(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := provider.CurrentUser(r)
			if err != nil {
				message := "Missing or invalid token"
				if !errors.Is(err, domain.ErrUnauthenticated) {
					message = domain.PublicMessage(domain.CodeInternal)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": domain.CodeUnauthenticated, "message": message},
				})
				return
			}

			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity extracts the caller from the request context.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

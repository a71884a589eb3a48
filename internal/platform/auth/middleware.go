package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Claims is the bearer token payload. Staff are identified by email.
type Claims struct {
	jwt.RegisteredClaims
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	License    string   `json:"license,omitempty"`
	Roles      []string `json:"roles"`
}

// Identity is the authenticated caller.
type Identity struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
	License   string
	Roles     []string
}

func (c *Claims) identity() Identity {
	return Identity{
		Subject:   c.Subject,
		Email:     c.Email,
		FirstName: c.GivenName,
		LastName:  c.FamilyName,
		License:   c.License,
		Roles:     c.Roles,
	}
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

// JWTMiddleware validates HS256 bearer tokens signed with cfg.SigningKey and
// stores the caller identity on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Email == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no email claim")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), claims.identity())))
			return next(c)
		}
	}
}

// Dev headers let a developer act as different staff members without tokens.
const (
	DevEmailHeader = "X-Dev-Email"
	DevRoleHeader  = "X-Dev-Role"
)

// DevAuthMiddleware is a permissive middleware for development. Requests
// without an Authorization header get an admin identity, overridable with the
// X-Dev-Email and X-Dev-Role headers. Bearer tokens are still validated when
// a signing key is configured.
func DevAuthMiddleware(signingKey []byte) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(JWTConfig{SigningKey: signingKey})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := jwtMW(next)
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get("Authorization") != "" && len(signingKey) > 0 {
				return validated(c)
			}
			id := Identity{Subject: "dev-user", Email: "dev@localhost", Roles: []string{"admin"}}
			if email := req.Header.Get(DevEmailHeader); email != "" {
				id.Subject, id.Email = email, email
			}
			if role := req.Header.Get(DevRoleHeader); role != "" {
				id.Roles = strings.Split(role, ",")
			}
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func RolesFromContext(ctx context.Context) []string {
	id, _ := IdentityFromContext(ctx)
	return id.Roles
}

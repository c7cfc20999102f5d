// Package middleware provides HTTP middleware for the ledger API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/axomx/reward-ledger/internal/errors"
	"github.com/axomx/reward-ledger/internal/httputil"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// RoleAdmin is the role admin routes require.
const RoleAdmin = "admin"

// Claims are the JWT claims accepted on admin routes.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuth validates HMAC-signed bearer tokens and requires RoleAdmin.
type AdminAuth struct {
	secret []byte
	issuer string
	log    *logger.Logger
	now    func() time.Time
}

// NewAdminAuth creates the middleware. With an empty secret every request is
// refused.
func NewAdminAuth(secret, issuer string, log *logger.Logger) *AdminAuth {
	if log == nil {
		log = logger.NewDefault("admin-auth")
	}
	return &AdminAuth{secret: []byte(secret), issuer: issuer, log: log, now: time.Now}
}

// Handler returns the middleware handler.
func (m *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			m.respondError(w, r, errors.Forbidden("admin access is not configured"))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		if claims.Role != RoleAdmin {
			m.respondError(w, r, errors.Forbidden(""))
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		ctx = context.WithValue(ctx, roleKey, claims.Role)

		m.log.WithFields(map[string]interface{}{
			"subject":  claims.Subject,
			"path":     r.URL.Path,
			"trace_id": TraceID(ctx),
		}).Debug("admin authenticated")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AdminAuth) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil)
	}
	return claims, nil
}

func (m *AdminAuth) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("authentication failed", err)
	}
	httputil.WriteServiceError(w, serviceErr)

	m.log.WithError(err).WithFields(map[string]interface{}{
		"path":     r.URL.Path,
		"method":   r.Method,
		"status":   serviceErr.HTTPStatus,
		"trace_id": TraceID(r.Context()),
	}).Warn("admin authentication failed")
}

// IssueAdminToken signs an HS256 admin token valid for ttl.
func IssueAdminToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

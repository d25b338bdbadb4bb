package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TenantClaims are the JWT claims requireTenant expects on a bearer token.
type TenantClaims struct {
	jwt.RegisteredClaims
	TenantID int64 `json:"tenant_id"`
}

// requireTenant parses a bearer JWT, extracts its tenant_id claim into the
// request context, and rejects the request if either step fails. Every
// handler behind it can assume tenantFromContext returns a real tenant.
func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			s.respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing bearer token")
			return
		}
		tokenString := strings.TrimPrefix(auth, "Bearer ")

		claims := &TenantClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.JWTSecret), nil
		})
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "invalid or expired token")
			return
		}
		if claims.TenantID == 0 {
			s.respondError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "token is missing a tenant_id claim")
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey{}, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/baywheel-hotline/internal/http/response"
	"github.com/diagnosis/baywheel-hotline/pkg/auth"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT admits requests carrying a valid bearer token for role.
func RequireJWT(secret, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				logger.WarnContext(r.Context(), "Invalid admin token", "error", err)
				response.WriteError(w, http.StatusUnauthorized, "Invalid or expired token", response.CodeInvalidToken)
				return
			}
			if claims.Role != role {
				response.Forbidden(w, "Insufficient permissions")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	v, _ := r.Context().Value(CtxClaims).(*auth.Claims)
	return v
}

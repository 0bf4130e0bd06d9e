package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bibliotek/pkg/auth"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// AuthOptions bundles the authentication dependencies.
type AuthOptions struct {
	Validator   *auth.JWTValidator
	IPLimiter   *auth.IPRateLimiter
	UserLimiter *auth.UserRateLimiter
	Logger      *zap.Logger
}

// Authenticate validates the bearer token, applies the IP and user rate
// limits, and puts the user into the request context.
func Authenticate(opts AuthOptions) func(next http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			if opts.IPLimiter != nil {
				allowed, err := opts.IPLimiter.Allow(r.Context(), clientIP)
				if err != nil {
					logger.Warn("ip rate limiter degraded", zap.Error(err))
				}
				if !allowed {
					common.RespondErrorCode(w, http.StatusTooManyRequests, errors.CodeRateLimited, "rate limit exceeded")
					return
				}
			}

			token := extractToken(r)
			if token == "" {
				common.RespondErrorCode(w, http.StatusUnauthorized, errors.CodeUnauthorized, "missing authentication token")
				return
			}

			claims, err := opts.Validator.ValidateToken(token)
			if err != nil {
				message := "invalid token"
				if err == auth.ErrExpiredToken {
					message = "token has expired"
				}
				logger.Debug("token rejected",
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
					zap.Error(err))
				common.RespondErrorCode(w, http.StatusUnauthorized, errors.CodeUnauthorized, message)
				return
			}

			if opts.UserLimiter != nil {
				allowed, err := opts.UserLimiter.Allow(r.Context(), claims.UserID)
				if err != nil {
					logger.Warn("user rate limiter degraded", zap.Error(err))
				}
				if !allowed {
					common.RespondErrorCode(w, http.StatusTooManyRequests, errors.CodeRateLimited, "user rate limit exceeded")
					return
				}
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects users missing every listed role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				common.RespondErrorCode(w, http.StatusUnauthorized, errors.CodeUnauthorized, "unauthorized")
				return
			}
			for _, required := range roles {
				for _, role := range user.Roles {
					if role == required {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			common.RespondErrorCode(w, http.StatusForbidden, errors.CodeForbidden, "insufficient permissions")
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

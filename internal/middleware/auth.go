package middleware

import (
	"context"
	"net/http"
	"strings"

	"character-sync/pkg/errors"

	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SubjectResolver maps a bearer token to the local account id.
type SubjectResolver interface {
	Subject(ctx context.Context, token string) (string, error)
}

// UserIDFromContext returns the local account id set by BearerAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// BearerAuth rejects requests without a valid bearer token and stores the
// token subject in the request context.
func BearerAuth(resolver SubjectResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				WriteError(w, errors.ErrUnauthorized)
				return
			}

			userID, err := resolver.Subject(r.Context(), strings.TrimSpace(token))
			if err != nil {
				logger.Debug("Bearer token rejected", zap.Error(err))
				WriteError(w, errors.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

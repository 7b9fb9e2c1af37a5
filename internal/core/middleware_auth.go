package core

import (
	"log/slog"
	"net/http"
	"strings"

	"gradboard/internal/types"
)

// AuthMiddleware authenticates requests using a Bearer token and attaches
// the resolved actor to the request context. Identity is derived solely from
// the verified token; identity-bearing request headers are ignored.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "authenticator not configured", nil))
			return
		}

		token, appErr := extractBearerToken(r)
		if appErr != nil {
			Error(w, r, appErr)
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.Logger.Warn("token resolution failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			Error(w, r, err)
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken pulls the token out of the Authorization header.
// Returns an AppError when the header is missing or malformed.
func extractBearerToken(r *http.Request) (string, *types.AppError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing, "authorization header required", nil)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "authorization header must be of the form 'Bearer <token>'", nil)
	}

	return parts[1], nil
}

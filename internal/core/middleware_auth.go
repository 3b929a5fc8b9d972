package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cropyield/internal/types"
)

// AuthMiddleware resolves the bearer token of every request to an Actor and
// stores it in the context. Failures answer 401 with one of
// auth_token_missing, auth_token_invalid or auth_token_expired.
//
// GET /health, the configured PublicPaths and CORS preflights are let
// through untouched, as is everything when no Authenticator is set.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	public := map[string]bool{"/health": true}
	for _, p := range s.PublicPaths {
		public[p] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || public[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := extractBearerToken(header)
		if token == "" {
			unauthorized(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		switch {
		case err != nil:
			s.rejectToken(w, r, err)
		case actor == nil:
			unauthorized(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
		default:
			next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
		}
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header, with the
// scheme matched case-insensitively, or "" for any other shape.
func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// rejectToken maps a ResolveToken failure to its 401. Errors other than the
// expired and invalid AppErrors are logged and reported as a plain failure.
func (s *Server) rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", types.GetRequestID(r.Context())),
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired", attrs...)
			unauthorized(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid", attrs...)
			unauthorized(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error", append(attrs, slog.String("error", err.Error()))...)
	unauthorized(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func unauthorized(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	Error(w, r, types.NewAppError(code, message, nil))
}

// RequireActor returns the caller resolved by AuthMiddleware. Without one it
// writes a 401 and reports false.
func RequireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		unauthorized(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
		return types.Actor{}, false
	}
	return actor, true
}

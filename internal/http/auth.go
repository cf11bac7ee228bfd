package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user-id"

// authMiddleware verifies an HS256 bearer token and stashes its user_id
// claim. Tokens are minted by the identity service; this layer only checks
// them.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.verifyRequest(r)
		if !ok {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (s *Server) verifyRequest(r *http.Request) (string, bool) {
	raw := bearerToken(r)
	if raw == "" {
		return "", false
	}
	return s.verifyToken(raw)
}

func (s *Server) verifyToken(raw string) (string, bool) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	userID, _ := claims["user_id"].(string)
	return userID, userID != ""
}

// bearerToken pulls the token from the Authorization header, falling back
// to a ?token= query param for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func userIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

// Auth resolves the caller from the x-user-id header. Both services sit
// behind an authenticating proxy; requests without the header are rejected
// because every stored row is scoped by user.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("x-user-id"))

		if userID == "" {
			http.Error(w, "missing x-user-id header", http.StatusUnauthorized)
			return
		}

		if !isValidUserID(userID) {
			slog.Warn("rejected invalid user id", "path", r.URL.Path)
			http.Error(w, "invalid user id format", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func isValidUserID(userID string) bool {
	if userID == "" || len(userID) > 255 {
		return false
	}

	for _, ch := range userID {
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '_' || ch == '.' || ch == '@') {
			return false
		}
	}

	return true
}

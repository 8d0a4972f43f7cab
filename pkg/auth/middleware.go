package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/sodacore/sodacore/pkg/execctx"
	"github.com/sodacore/sodacore/pkg/httpx"
	"github.com/sodacore/sodacore/pkg/logger"
)

const sessionName = "sodacore_session"

const (
	sessionUserNameKey    = "user_name"
	sessionJTIKey         = "jti"
	sessionAuthoritiesKey = "authorities"
	sessionCallerUIDKey   = "caller_uid"
	sessionTenantIDKey    = "tenant_id"
)

// RequireAuth is a chi middleware that enforces authentication via session
// cookies. It reads the session cookie, extracts the caller's Identity,
// and installs it onto both the plain request context (for handlers that
// want it directly) and the ExecutionContext the dispatch fabric's
// interceptor restores on every command/query/event dispatch. Returns
// 401 Unauthorized if the session is missing, invalid, or lacks a
// caller_uid.
func RequireAuth(store sessions.Store, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, sessionName)
			if err != nil {
				log.WarnContext(r.Context(), "invalid session cookie", "error", err)
				httpx.JSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			callerUID, ok := session.Values[sessionCallerUIDKey].(string)
			if !ok || callerUID == "" {
				log.WarnContext(r.Context(), "session missing caller_uid")
				httpx.JSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			id := Identity{
				CallerUID: callerUID,
				UserName:  stringValue(session.Values, sessionUserNameKey),
				JTI:       stringValue(session.Values, sessionJTIKey),
				TenantID:  stringValue(session.Values, sessionTenantIDKey),
			}
			if raw := stringValue(session.Values, sessionAuthoritiesKey); raw != "" {
				id.Authorities = strings.Split(raw, ",")
			}

			ctx := WithIdentity(r.Context(), id)
			ctx = execctx.Install(ctx, execctx.ExecutionContext{
				RequestID:   r.Header.Get("X-Request-Id"),
				UserName:    id.UserName,
				Authorities: id.Authorities,
				JTI:         id.JTI,
				CallerUID:   id.CallerUID,
				TenantID:    id.TenantID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func stringValue(values map[any]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

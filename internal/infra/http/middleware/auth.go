package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/jwt"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Auth-related context keys - use logger.ContextKey for consistency.
const (
	UserIDKey                   = logger.ContextKeyUserID
	RoleKey   logger.ContextKey = "role"
	ActorKey  logger.ContextKey = "actor"
)

// TokenValidator validates an access token.
type TokenValidator interface {
	Validate(token string) (*jwt.Claims, error)
}

// GetUserID extracts the user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRole extracts the caller's role name from context.
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// GetActor returns the authenticated caller.
func GetActor(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(authz.Actor)
	return actor, ok
}

// WithActor stores the caller in ctx.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	ctx = context.WithValue(ctx, ActorKey, actor)
	ctx = context.WithValue(ctx, UserIDKey, actor.ID)
	return context.WithValue(ctx, RoleKey, actor.Role)
}

// Auth validates the bearer token and stores the caller in the request
// context. Browsers cannot set headers on WebSocket upgrades, so a
// token query parameter is accepted there.
func Auth(validator TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				RecordAuthFailure("missing_token")
				apierror.Unauthorized("").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, jwt.ErrExpiredToken) {
					reason = "expired_token"
				}
				RecordAuthFailure(reason)
				log.Debug("token rejected",
					"reason", reason,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Unauthorized("Invalid or expired token").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			ctx := WithActor(r.Context(), authz.Actor{ID: claims.UserID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if websocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

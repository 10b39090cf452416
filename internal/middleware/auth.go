package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/service/audit"
	"github.com/jwalitptl/physio-api/pkg/auth"
	"github.com/jwalitptl/physio-api/pkg/errors"
	"github.com/jwalitptl/physio-api/pkg/httputil"
)

const (
	ContextActor  = "actor"
	ContextUserID = "user_id"
)

type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, role string) (*model.Actor, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
	actors ActorResolver
}

func NewAuthMiddleware(tokens TokenVerifier, actors ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		actors: actors,
	}
}

// Authenticate verifies the bearer token and stores the resolved actor in
// the context. Missing or invalid tokens are 401; a valid token whose role
// has no backing profile is 403.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthorized("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, errors.Unauthorized("invalid authorization format", nil))
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized("invalid token", err))
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized("invalid token", err))
			return
		}

		actor, err := m.actors.Resolve(c.Request.Context(), userID, claims.Role)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextActor, actor)
		c.Set(ContextUserID, actor.UserID.String())
		c.Request = c.Request.WithContext(audit.WithRequestInfo(c.Request.Context(), audit.RequestInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
		c.Next()
	}
}

// CurrentActor returns the actor set by Authenticate, or nil.
func CurrentActor(c *gin.Context) *model.Actor {
	v, ok := c.Get(ContextActor)
	if !ok {
		return nil
	}
	actor, _ := v.(*model.Actor)
	return actor
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		if actor == nil {
			httputil.RespondWithError(c, errors.Unauthorized("authentication required", nil))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("permission denied", nil))
	}
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
)

// ContextActorKey is the gin context key storing the calling actor.
const ContextActorKey = "currentActor"

// Actor attaches the identity forwarded by the gateway. Requests without an
// identity header run as the system actor.
func Actor(cfg config.AccessConfig) gin.HandlerFunc {
	actorHeader := cfg.ActorHeader
	if actorHeader == "" {
		actorHeader = "X-Actor-ID"
	}
	roleHeader := cfg.RoleHeader
	if roleHeader == "" {
		roleHeader = "X-Actor-Role"
	}
	return func(c *gin.Context) {
		actor := models.Actor{
			ID:   strings.TrimSpace(c.GetHeader(actorHeader)),
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(roleHeader))),
		}
		if actor.ID == "" {
			actor.ID = models.SystemActor
		}
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored on the context, or the system actor.
func ActorFrom(c *gin.Context) models.Actor {
	if c != nil {
		if value, exists := c.Get(ContextActorKey); exists {
			if actor, ok := value.(models.Actor); ok {
				return actor
			}
		}
	}
	return models.Actor{ID: models.SystemActor}
}

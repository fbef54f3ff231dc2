package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/middleware"
)

func actorID(c *gin.Context) string {
	return middleware.ActorFrom(c).ID
}

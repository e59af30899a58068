package handler

import (
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	svc    *service.ProfileService
	actors *actorResolver
	errs   *errorResponder
}

// Me GET /me/profile
func (h *ProfileHandler) Me(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	p, err := h.svc.GetProfile(c.Request.Context(), actor.UserID)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, gin.H{
		"profile":     p,
		"user_type":   actor.UserType,
		"is_verified": actor.IsVerified,
		"is_admin":    actor.IsAdmin,
		"role":        actor.Role,
	})
}

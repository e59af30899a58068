package handler

import (
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// QuoteHandler serves quote reads and buyer actions. Admins reach the same reads.
type QuoteHandler struct {
	svc    *service.QuoteService
	actors *actorResolver
	errs   *errorResponder
}

// Create POST /quotes
func (h *QuoteHandler) Create(c *gin.Context) {
	var req service.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	q, err := h.svc.CreateQuote(c.Request.Context(), actor, &req)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Created(c, q)
}

// List GET /quotes
func (h *QuoteHandler) List(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status": c.Query("status"),
		"search": c.Query("search"),
	}

	items, total, err := h.svc.ListQuotes(c.Request.Context(), actor, page, pageSize, filters)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, listResponse(items, page, pageSize, total))
}

// Get GET /quotes/:id
func (h *QuoteHandler) Get(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	view, err := h.svc.GetQuote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, view)
}

// AuditLog GET /quotes/:id/audit-log
func (h *QuoteHandler) AuditLog(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	entries, err := h.svc.GetQuoteAuditLog(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// Permissions GET /quotes/:id/permissions
func (h *QuoteHandler) Permissions(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	perms, err := h.svc.GetQuotePermissions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, perms)
}

// Submit POST /quotes/:id/submit
func (h *QuoteHandler) Submit(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	res, err := h.svc.SubmitQuote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, res)
}

// Convert POST /quotes/:id/convert
func (h *QuoteHandler) Convert(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	res, err := h.svc.ConvertToOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, res)
}

// ListMessages GET /quotes/:id/messages
func (h *QuoteHandler) ListMessages(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, gin.H{"items": msgs})
}

type postMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// PostMessage POST /quotes/:id/messages
func (h *QuoteHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), actor, c.Param("id"), req.Body)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Created(c, msg)
}

// NextStates GET /quote-statuses/:status/next
func (h *QuoteHandler) NextStates(c *gin.Context) {
	next, err := h.svc.AllowedNextStates(c.Param("status"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, gin.H{"status": c.Param("status"), "allowed_next_states": next})
}

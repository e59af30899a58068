package handler

import (
	"errors"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the back-office quote actions.
type AdminHandler struct {
	svc      *service.QuoteService
	profiles *service.ProfileService
	orders   *service.OrderService
	export   *service.ExportService
	actors   *actorResolver
	errs     *errorResponder
}

// List GET /admin/quotes
func (h *AdminHandler) List(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":        c.Query("status"),
		"search":        c.Query("search"),
		"clerk_user_id": c.Query("buyer_id"),
	}

	items, total, err := h.svc.ListQuotes(c.Request.Context(), actor, page, pageSize, filters)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, listResponse(items, page, pageSize, total))
}

// StartReview POST /admin/quotes/:id/start-review
func (h *AdminHandler) StartReview(c *gin.Context) {
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.StartReview(c.Request.Context(), actor, c.Param("id"))
	})
}

type approveRequest struct {
	Notes string `json:"notes"`
}

// Approve POST /admin/quotes/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.ApproveQuote(c.Request.Context(), actor, c.Param("id"), req.Notes)
	})
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject POST /admin/quotes/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "a rejection reason is required")
		return
	}
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.RejectQuote(c.Request.Context(), actor, c.Param("id"), req.Reason)
	})
}

// SetPricing POST /admin/quotes/:id/pricing
func (h *AdminHandler) SetPricing(c *gin.Context) {
	var req service.SetPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.SetPricing(c.Request.Context(), actor, c.Param("id"), &req)
	})
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// SetPricingVisibility POST /admin/quotes/:id/pricing-visibility
func (h *AdminHandler) SetPricingVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "visible is required")
		return
	}
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.SetPricingVisibility(c.Request.Context(), actor, c.Param("id"), *req.Visible)
	})
}

// Expire POST /admin/quotes/:id/expire
func (h *AdminHandler) Expire(c *gin.Context) {
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.MarkExpired(c.Request.Context(), actor, c.Param("id"))
	})
}

// Order GET /admin/quotes/:id/order
func (h *AdminHandler) Order(c *gin.Context) {
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
	if view.Quote.OrderID == nil {
		NotFound(c, "quote has not been converted")
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), *view.Quote.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "order has not been created yet")
			return
		}
		h.errs.respond(c, err)
		return
	}
	Success(c, order)
}

// EnsureOrder POST /admin/quotes/:id/order
func (h *AdminHandler) EnsureOrder(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	order, err := h.svc.EnsureOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, order)
}

type updateItemsRequest struct {
	Items []service.QuoteItemInput `json:"items" binding:"required"`
	Notes string                   `json:"notes"`
}

// UpdateItems PUT /admin/quotes/:id/items
func (h *AdminHandler) UpdateItems(c *gin.Context) {
	var req updateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.act(c, func(actor service.Actor) (*service.ActionResult, error) {
		return h.svc.UpdateItems(c.Request.Context(), actor, c.Param("id"), req.Items, req.Notes)
	})
}

// Export GET /admin/quotes/export?status=&since=2026-01-02
func (h *AdminHandler) Export(c *gin.Context) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	since := time.Now().AddDate(0, -3, 0)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			BadRequest(c, "since must be a date like 2026-01-02")
			return
		}
		since = t
	}
	filters := map[string]string{"status": c.Query("status"), "search": c.Query("search")}

	f, filename, err := h.export.ExportQuotes(c.Request.Context(), actor, filters, since)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// SetVerification PUT /admin/buyers/:userId/verification
func (h *AdminHandler) SetVerification(c *gin.Context) {
	var req service.SetVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	p, err := h.profiles.SetVerification(c.Request.Context(), actor, c.Param("userId"), &req)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, p)
}

func (h *AdminHandler) act(c *gin.Context, fn func(service.Actor) (*service.ActionResult, error)) {
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	res, err := fn(actor)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, res)
}

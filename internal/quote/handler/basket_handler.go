package handler

import (
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// BasketHandler serves the buyer's quote basket.
type BasketHandler struct {
	svc    *service.BasketService
	actors *actorResolver
	errs   *errorResponder
}

// Get GET /basket
func (h *BasketHandler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), GetUserID(c))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

// AddItem POST /basket/items
func (h *BasketHandler) AddItem(c *gin.Context) {
	var req service.BasketItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.AddItem(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

type quantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// UpdateItem PUT /basket/items/:itemId
func (h *BasketHandler) UpdateItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "quantity is required")
		return
	}
	b, err := h.svc.UpdateItemQuantity(c.Request.Context(), GetUserID(c), c.Param("itemId"), req.Quantity)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

// RemoveItem DELETE /basket/items/:itemId
func (h *BasketHandler) RemoveItem(c *gin.Context) {
	b, err := h.svc.RemoveItem(c.Request.Context(), GetUserID(c), c.Param("itemId"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

// Clear DELETE /basket
func (h *BasketHandler) Clear(c *gin.Context) {
	b, err := h.svc.Clear(c.Request.Context(), GetUserID(c))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

type replaceBasketRequest struct {
	Items []service.BasketItemInput `json:"items"`
}

// Replace PUT /basket
func (h *BasketHandler) Replace(c *gin.Context) {
	var req replaceBasketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Replace(c.Request.Context(), GetUserID(c), req.Items)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Success(c, b)
}

// Submit POST /basket/submit
func (h *BasketHandler) Submit(c *gin.Context) {
	var req service.SubmitBasketRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	actor, err := h.actors.resolve(c)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), actor, &req)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	Created(c, res)
}

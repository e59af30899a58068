package handler

import (
	"errors"
	"strconv"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/middleware"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/service"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers of the quote service.
type Handlers struct {
	Quote   *QuoteHandler
	Admin   *AdminHandler
	Basket  *BasketHandler
	Profile *ProfileHandler
	SSE     *SSEHandler
}

// NewHandlers builds all handlers over svc.
func NewHandlers(svc *service.Services, hub *sse.Hub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	actors := &actorResolver{profiles: svc.Profile}
	errs := &errorResponder{logger: logger}
	return &Handlers{
		Quote:   &QuoteHandler{svc: svc.Quote, actors: actors, errs: errs},
		Admin:   &AdminHandler{svc: svc.Quote, profiles: svc.Profile, orders: svc.Order, export: svc.Export, actors: actors, errs: errs},
		Basket:  &BasketHandler{svc: svc.Basket, actors: actors, errs: errs},
		Profile: &ProfileHandler{svc: svc.Profile, actors: actors, errs: errs},
		SSE:     NewSSEHandler(hub),
	}
}

// Response is the common response envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse is the envelope data of list endpoints.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope; the HTTP status is code/100.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// GetUserID returns the authenticated user id.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination reads page and page_size, defaulting to 1 and 20.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func listResponse(items interface{}, page, pageSize int, total int64) ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

// Error codes for core failures.
const (
	codeValidation = 40000
	codeForbidden  = 40300
	codeNotFound   = 40400
	codeTransition = 40900
	codeConflict   = 40901
	codeInternal   = 50000
)

type errorResponder struct {
	logger *zap.Logger
}

// respond maps a core error to the envelope. Core messages are returned as is, except
// persistence failures, which are logged and answered generically.
func (r *errorResponder) respond(c *gin.Context, err error) {
	var (
		authErr       *service.AuthorizationError
		transitionErr *lifecycle.TransitionError
		conflictErr   *service.ConflictError
		validationErr *service.ValidationError
		persistErr    *service.PersistenceError
	)
	switch {
	case errors.As(err, &authErr):
		Error(c, codeForbidden, authErr.Error())
	case errors.As(err, &transitionErr):
		Error(c, codeTransition, transitionErr.Error())
	case errors.As(err, &conflictErr):
		Error(c, codeConflict, conflictErr.Error())
	case errors.As(err, &validationErr):
		Error(c, codeValidation, validationErr.Error())
	case errors.Is(err, service.ErrQuoteNotFound), errors.Is(err, service.ErrBasketItemNotFound):
		Error(c, codeNotFound, err.Error())
	case errors.As(err, &persistErr):
		r.logger.Error("persistence failure",
			zap.String("op", persistErr.Op),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(persistErr.Err))
		Error(c, codeInternal, "the change could not be saved, please try again")
	default:
		r.logger.Error("unexpected error",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		InternalError(c, "internal error")
	}
}

type actorResolver struct {
	profiles *service.ProfileService
}

// resolve builds the actor from the JWT principal. Buyers are classified from their live
// profile on every request.
func (a *actorResolver) resolve(c *gin.Context) (service.Actor, error) {
	actor := service.Actor{
		UserID: GetUserID(c),
		Name:   c.GetString("user_name"),
	}
	var roles []string
	if v, ok := c.Get("roles"); ok {
		roles, _ = v.([]string)
	}
	if role := middleware.AdminRole(roles); role != "" {
		actor.Role = role
		actor.IsAdmin = true
		return actor, nil
	}

	cls, err := a.profiles.Classify(c.Request.Context(), actor.UserID)
	if err != nil {
		return service.Actor{}, err
	}
	actor.UserType = cls.UserType
	actor.IsVerified = cls.IsVerified
	return actor, nil
}

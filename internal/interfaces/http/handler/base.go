package handler

import (
	"errors"
	"net/http"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// getUserID extracts the acting user ID from JWT claims
func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr := middleware.GetJWTUserID(c)
	if userIDStr == "" {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	return uuid.Parse(userIDStr)
}

// getTenantID extracts the tenant ID from JWT claims. Every ledger request
// runs in exactly one tenant; there is no fallback.
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	tenantIDStr := middleware.GetJWTTenantID(c)
	if tenantIDStr == "" {
		return uuid.Nil, errors.New("tenant ID not found in context")
	}
	return uuid.Parse(tenantIDStr)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindError sends a 400 response with per-field validation details
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, getRequestID(c)))
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts domain errors to HTTP responses. Validation errors map
// to 400, business rule rejections to 422, duplicates to 409, everything
// unrecognized to 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var validationErr *ledger.ValidationError
	if errors.As(err, &validationErr) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, validationErr.Error())
		return
	}

	var stockErr *ledger.InsufficientStockError
	if errors.As(err, &stockErr) {
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock, stockErr.Error())
		return
	}

	var allocErr *ledger.AllocationError
	if errors.As(err, &allocErr) {
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeAllocationFailed, allocErr.Error())
		return
	}

	if errors.Is(err, shared.ErrNotFound) {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Resource not found")
		return
	}
	if errors.Is(err, shared.ErrDuplicateSubmission) {
		h.Error(c, http.StatusConflict, dto.ErrCodeDuplicate, "Operation was already processed")
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, http.StatusUnprocessableEntity, domainErr.Code, domainErr.Message)
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}

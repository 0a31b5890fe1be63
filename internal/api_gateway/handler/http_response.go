package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/multicurrency-ledger/internal/api_gateway/middleware"
)

// Response is the envelope of every API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo carries a machine-readable code, usually a ledger reason
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo describes the page returned by a list endpoint
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

func newMeta(page, perPage, totalItems int) *MetaInfo {
	totalPages := 0
	if perPage > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
	}
	return &MetaInfo{
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		TotalItems: totalItems,
	}
}

// respond stamps the correlation ID and writes the envelope
func respond(c *gin.Context, statusCode int, response Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	respond(c, statusCode, Response{Data: data})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// RespondWithPaginatedData sends one page of a list with its paging metadata
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	respond(c, statusCode, Response{Data: data, Meta: newMeta(page, perPage, totalItems)})
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

// RespondConflict sends a 409 carrying the given code
func RespondConflict(c *gin.Context, code, message string) {
	RespondWithError(c, http.StatusConflict, code, message)
}

// RespondUnprocessable sends a 422 holding both the rejected resource and
// the reason it was rejected
func RespondUnprocessable(c *gin.Context, data interface{}, code, message string) {
	respond(c, http.StatusUnprocessableEntity, Response{
		Data:  data,
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

// RespondServiceUnavailable sends a 503 the client may retry with the same key
func RespondServiceUnavailable(c *gin.Context, code, message string) {
	c.Header("Retry-After", "1")
	RespondWithError(c, http.StatusServiceUnavailable, code, message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; widget clients branch on them.
// failService maps service sentinels onto a status and code, and never puts
// backend error text in the response.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "chatbot_inactive",
//	  "message": "chatbot is not available"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/services"
)

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeChatbotInactive      = "chatbot_inactive"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeAlreadyRated         = "already_rated"
	ErrCodeProvider             = "provider_error"
	ErrCodeProviderTimeout      = "provider_timeout"
	ErrCodeMethodNotAllowed     = "method_not_allowed"
)

// failService answers a service error with the matching envelope. Server
// side failures log the underlying error with the request logger.
func failService(c *gin.Context, err error) {
	status, code, msg := classify(err)
	failWith(c, status, code, msg, err)
}

func classify(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, ErrCodeBadRequest, "invalid request"
	case errors.Is(err, services.ErrChatbotNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "chatbot not found"
	case errors.Is(err, services.ErrChatbotInactive):
		return http.StatusForbidden, ErrCodeChatbotInactive, "chatbot is not available"
	case errors.Is(err, services.ErrConversationNotFound):
		return http.StatusNotFound, ErrCodeConversationNotFound, "conversation not found"
	case errors.Is(err, services.ErrAlreadyRated):
		return http.StatusConflict, ErrCodeAlreadyRated, "conversation already rated"
	case provider.KindOf(err) == provider.KindTimeout:
		return http.StatusGatewayTimeout, ErrCodeProviderTimeout, "the assistant took too long to respond"
	case errors.Is(err, services.ErrProvider):
		return http.StatusBadGateway, ErrCodeProvider, services.GenericStreamError
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// Package services defines the business logic of the widget chat pipeline.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed in the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/go-widget-chat/internal/provider"
)

var (
	// ErrInvalidRequest is returned when required input is missing or out
	// of range. Nothing has been written when it is returned.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrChatbotNotFound indicates that no chatbot exists for the id.
	ErrChatbotNotFound = errors.New("chatbot not found")

	// ErrChatbotInactive is returned for chatbots the tenant has disabled.
	ErrChatbotInactive = errors.New("chatbot is inactive")

	// ErrConversationNotFound indicates that the session has never chatted
	// with the chatbot.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrAlreadyRated is returned on a second rating for one conversation.
	ErrAlreadyRated = errors.New("conversation already rated")

	// ErrProvider matches every *provider.Error.
	ErrProvider = provider.ErrProvider

	// ErrClientGone is returned when the visitor disconnected mid-stream.
	// Partial content has been persisted and no further frames may be written.
	ErrClientGone = errors.New("client disconnected")
)

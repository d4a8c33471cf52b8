// Package docs registers the OpenAPI document served by gin-swagger at
// /swagger/*any. Keep it in step with the godoc annotations on the handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/widget/{chatbotId}/chat": {
            "post": {
                "operationId": "postChat",
                "summary": "Stream an assistant reply",
                "tags": ["Widget"],
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "parameters": [
                    {"type": "string", "name": "chatbotId", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChatRequest"}}
                ],
                "responses": {
                    "200": {"description": "Event stream", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Chatbot inactive", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Provider error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "504": {"description": "Provider timeout", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/widget/{chatbotId}/config": {
            "get": {
                "operationId": "getWidgetConfig",
                "summary": "Public widget appearance",
                "tags": ["Widget"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "chatbotId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.WidgetConfig"}},
                    "403": {"description": "Chatbot inactive", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/widget/{chatbotId}/rating": {
            "post": {
                "operationId": "postRating",
                "summary": "Rate the session's conversation",
                "tags": ["Widget"],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "chatbotId", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RatingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.RatingResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Already rated", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/widget/{chatbotId}/messages": {
            "get": {
                "operationId": "listMessages",
                "summary": "Session transcript",
                "tags": ["Widget"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "chatbotId", "in": "path", "required": true},
                    {"type": "string", "name": "sessionId", "in": "query", "required": true},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListMessagesResponse"}},
                    "304": {"description": "Not modified"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ChatRequest": {
            "type": "object",
            "required": ["message", "sessionId"],
            "properties": {
                "message": {"type": "string", "example": "Hola"},
                "sessionId": {"type": "string", "example": "3f0c2a9e-visitor"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        },
        "handlers.RatingRequest": {
            "type": "object",
            "required": ["sessionId", "rating"],
            "properties": {
                "sessionId": {"type": "string"},
                "rating": {"type": "integer", "minimum": 1, "maximum": 5},
                "feedback": {"type": "string"}
            }
        },
        "handlers.RatingResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "conversationId": {"type": "integer"},
                "rating": {"type": "integer"},
                "feedback": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.TranscriptMessage": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "role": {"type": "string", "enum": ["user", "assistant"]},
                "content": {"type": "string"},
                "responseTimeMs": {"type": "integer"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/handlers.TranscriptMessage"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "services.WidgetConfig": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "primaryColor": {"type": "string"},
                "textColor": {"type": "string"},
                "position": {"type": "string"},
                "welcomeMessage": {"type": "string"},
                "avatarUrl": {"type": "string"},
                "placeholder": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Widget Chat API",
	Description:      "Public endpoints called by the embeddable chat widget.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

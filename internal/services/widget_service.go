// Package services – WidgetService
//
// This file serves the public appearance of a chatbot to the embeddable
// widget. Results are cached per chatbot; a cache miss storm on a popular
// embed collapses into one database read.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-widget-chat/internal/cache"
	"github.com/tbourn/go-widget-chat/internal/domain"
)

// WidgetConfig is the public subset of a Chatbot.
type WidgetConfig struct {
	ID             string  `json:"id"             example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Name           string  `json:"name"           example:"Soporte"`
	PrimaryColor   string  `json:"primaryColor"   example:"#2563eb"`
	TextColor      string  `json:"textColor"      example:"#ffffff"`
	Position       string  `json:"position"       example:"bottom-right"`
	WelcomeMessage string  `json:"welcomeMessage" example:"¡Hola! ¿En qué puedo ayudarte?"`
	AvatarURL      *string `json:"avatarUrl"`
	Placeholder    string  `json:"placeholder"    example:"Escribe un mensaje..."`
}

// NewWidgetConfig projects cb onto the fields the widget may see.
func NewWidgetConfig(cb *domain.Chatbot) WidgetConfig {
	return WidgetConfig{
		ID:             cb.ID,
		Name:           cb.Name,
		PrimaryColor:   cb.PrimaryColor,
		TextColor:      cb.TextColor,
		Position:       cb.Position,
		WelcomeMessage: cb.WelcomeMessage,
		AvatarURL:      cb.AvatarURL,
		Placeholder:    cb.Placeholder,
	}
}

// WidgetService resolves widget configs. Cache may be nil.
type WidgetService struct {
	Chatbots ChatbotSource
	Cache    *cache.Loader
}

func widgetKey(chatbotID string) string { return "widget:config:" + chatbotID }

// Config returns the widget config of an active chatbot. Missing and
// inactive chatbots are never cached.
func (s *WidgetService) Config(ctx context.Context, chatbotID string) (*WidgetConfig, error) {
	tr := otel.Tracer("services/WidgetService")
	ctx, span := tr.Start(ctx, "Config", trace.WithAttributes(attribute.String("chatbot.id", chatbotID)))
	defer span.End()

	chatbotID = strings.TrimSpace(chatbotID)
	if chatbotID == "" {
		return nil, fmt.Errorf("%w: chatbot id is required", ErrInvalidRequest)
	}

	load := func(ctx context.Context) ([]byte, error) {
		cb, err := activeChatbot(ctx, s.Chatbots, chatbotID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(NewWidgetConfig(cb))
	}

	var (
		raw []byte
		err error
	)
	if s.Cache != nil {
		raw, err = s.Cache.Fetch(ctx, widgetKey(chatbotID), load)
	} else {
		raw, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	var cfg WidgetConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode widget config: %w", err)
	}
	return &cfg, nil
}

// Invalidate drops the cached config, e.g. after a dashboard edit or seed.
func (s *WidgetService) Invalidate(ctx context.Context, chatbotID string) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Invalidate(ctx, widgetKey(chatbotID))
}

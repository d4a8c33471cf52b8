package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// CustomConfig carries the tenant-supplied endpoint of a custom chatbot.
type CustomConfig struct {
	Endpoint string
	APIKey   string
}

// Selector resolves the adapter for a chatbot. Hosted adapters are built
// once at startup; custom adapters are built per request because endpoint
// and key differ per chatbot.
type Selector struct {
	OpenAI    Provider
	Gemini    Provider
	NewCustom func(CustomConfig) (Provider, error)
}

// For is a pure function of cb.AIProvider (plus the custom fields for
// custom chatbots).
func (s *Selector) For(cb *domain.Chatbot) (Provider, error) {
	switch cb.AIProvider {
	case domain.ProviderOpenAI:
		if s.OpenAI == nil {
			return nil, &Error{Provider: cb.AIProvider, Kind: KindConfig, Err: errors.New("openai provider not configured")}
		}
		return s.OpenAI, nil
	case domain.ProviderGemini:
		if s.Gemini == nil {
			return nil, &Error{Provider: cb.AIProvider, Kind: KindConfig, Err: errors.New("gemini provider not configured")}
		}
		return s.Gemini, nil
	case domain.ProviderCustom:
		cfg := CustomConfig{}
		if cb.CustomEndpoint != nil {
			cfg.Endpoint = *cb.CustomEndpoint
		}
		if cb.CustomAPIKey != nil {
			cfg.APIKey = *cb.CustomAPIKey
		}
		newCustom := s.NewCustom
		if newCustom == nil {
			newCustom = NewCustom
		}
		return newCustom(cfg)
	default:
		return nil, &Error{Provider: cb.AIProvider, Kind: KindConfig, Err: fmt.Errorf("unknown ai provider %q", cb.AIProvider)}
	}
}

// NewCustom validates a tenant endpoint and returns an OpenAI-compatible
// adapter for it. A trailing /chat/completions is accepted and trimmed.
func NewCustom(cfg CustomConfig) (Provider, error) {
	base, err := normalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, &Error{Provider: domain.ProviderCustom, Kind: KindConfig, Err: err}
	}
	return NewOpenAI(OpenAIConfig{Name: domain.ProviderCustom, APIKey: cfg.APIKey, BaseURL: base}), nil
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("custom endpoint is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("custom endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("custom endpoint %q must be an absolute http(s) URL", raw)
	}
	p := strings.TrimRight(u.Path, "/")
	p = strings.TrimSuffix(p, "/chat/completions")
	u.Path = p
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

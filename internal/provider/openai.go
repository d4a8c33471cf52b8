package provider

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible adapter.
type OpenAIConfig struct {
	Name       string // reported in errors and metrics; defaults to "openai"
	APIKey     string // empty sends no Authorization header
	BaseURL    string // empty keeps the go-openai default
	HTTPClient *http.Client
}

// OpenAI talks to any backend that implements the chat-completions
// streaming contract: the hosted service and tenant-run servers alike.
type OpenAI struct {
	name   string
	client *openai.Client
}

// NewOpenAI builds the adapter once; it is safe for concurrent use.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.APIKey == "" {
		// go-openai always sets a bearer header; strip the empty one.
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		clone := *hc
		clone.Transport = stripEmptyBearer{base: base}
		hc = &clone
	}
	cc.HTTPClient = hc
	return &OpenAI{name: name, client: openai.NewClientWithConfig(cc)}
}

func (p *OpenAI) Name() string { return p.name }

// Stream opens a streaming chat completion.
func (p *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	s, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: wireTemperature(req.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	return &openAIStream{p: p, ctx: ctx, s: s}, nil
}

func (p *OpenAI) classify(ctx context.Context, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &Error{Provider: p.name, Kind: StatusKind(apiErr.HTTPStatusCode), Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Provider: p.name, Kind: StatusKind(reqErr.HTTPStatusCode), Status: reqErr.HTTPStatusCode, Err: err}
	}
	return Classify(p.name, ctx, err)
}

type openAIStream struct {
	p      *OpenAI
	ctx    context.Context
	s      *openai.ChatCompletionStream
	closed bool
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.s.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", s.p.classify(s.ctx, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openAIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.s.Close()
	return nil
}

type stripEmptyBearer struct {
	base http.RoundTripper
}

func (t stripEmptyBearer) RoundTrip(r *http.Request) (*http.Response, error) {
	if v := r.Header.Get("Authorization"); v == "" || strings.TrimSpace(v) == "Bearer" {
		r = r.Clone(r.Context())
		r.Header.Del("Authorization")
	}
	return t.base.RoundTrip(r)
}

// wireTemperature converts a chatbot temperature for go-openai, whose
// request field is omitempty: a literal 0 would be dropped and the backend
// default (usually 1) used instead. Zero and below are sent as the smallest
// positive float32, which backends treat as greedy decoding.
func wireTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbourn/go-widget-chat/internal/sse"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string // e.g. https://generativelanguage.googleapis.com/v1beta
	HTTPClient *http.Client
}

// Gemini streams from the generateContent REST API with alt=sse.
type Gemini struct {
	key     string
	baseURL string
	hc      *http.Client
}

// NewGemini builds the adapter once; it is safe for concurrent use.
func NewGemini(cfg GeminiConfig) *Gemini {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Gemini{key: cfg.APIKey, baseURL: base, hc: hc}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildGeminiRequest(req Request) geminiRequest {
	out := geminiRequest{
		GenerationConfig: geminiGenConfig{MaxOutputTokens: req.MaxTokens, Temperature: req.Temperature},
	}
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	return out
}

// Stream opens a streamGenerateContent call.
func (g *Gemini) Stream(ctx context.Context, req Request) (Stream, error) {
	model := strings.TrimPrefix(req.Model, "models/")
	if model == "" {
		return nil, &Error{Provider: g.Name(), Kind: KindConfig, Err: errors.New("model is required")}
	}
	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, &Error{Provider: g.Name(), Kind: KindMalformed, Err: err}
	}
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, url.PathEscape(model))
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: g.Name(), Kind: KindConfig, Err: err}
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	if g.key != "" {
		hreq.Header.Set("x-goog-api-key", g.key)
	}

	resp, err := g.hc.Do(hreq)
	if err != nil {
		return nil, Classify(g.Name(), ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, g.statusError(resp)
	}
	return &geminiStream{g: g, ctx: ctx, body: resp.Body, dec: sse.NewDecoder(resp.Body)}, nil
}

func (g *Gemini) statusError(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(raw))
	var eb geminiErrorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Status + ": " + eb.Error.Message
	}
	return &Error{
		Provider: g.Name(),
		Kind:     StatusKind(resp.StatusCode),
		Status:   resp.StatusCode,
		Err:      errors.New(msg),
	}
}

type geminiStream struct {
	g      *Gemini
	ctx    context.Context
	body   io.ReadCloser
	dec    *sse.Decoder
	closed bool
}

func (s *geminiStream) Recv() (string, error) {
	for {
		f, err := s.dec.Next()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", Classify(s.g.Name(), s.ctx, err)
		}
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
			return "", &Error{Provider: s.g.Name(), Kind: KindMalformed, Err: err}
		}
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return "", &Error{Provider: s.g.Name(), Kind: KindMalformed, Err: fmt.Errorf("prompt blocked: %s", chunk.PromptFeedback.BlockReason)}
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		var b strings.Builder
		for _, p := range chunk.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
}

func (s *geminiStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

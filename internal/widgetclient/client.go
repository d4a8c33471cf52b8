// Package widgetclient is a Go client for the public widget API. It speaks
// the same protocol as the embeddable widget: JSON for config, rating and
// transcript calls, and a server-sent event stream for chat turns.
package widgetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-widget-chat/internal/sse"
)

var (
	// ErrStreamFailed means the server ended the turn with an error frame.
	ErrStreamFailed = errors.New("widgetclient: stream failed")
	// ErrIncompleteStream means the body closed without a done or error frame.
	ErrIncompleteStream = errors.New("widgetclient: stream ended without a terminal frame")
)

// APIError is a JSON error envelope returned before any streaming began.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("widgetclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls one chatbot's widget endpoints.
type Client struct {
	// BaseURL includes the API base path, e.g. http://localhost:8080/api/v1.
	BaseURL   string
	ChatbotID string
	// HTTPClient defaults to a client without a timeout; chat turns are
	// bounded by the server's provider ceiling and the caller's context.
	HTTPClient *http.Client
}

// New returns a Client for chatbotID under baseURL.
func New(baseURL, chatbotID string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), ChatbotID: chatbotID, HTTPClient: &http.Client{}}
}

// ChatRequest is one visitor turn.
type ChatRequest struct {
	SessionID      string
	Message        string
	IdempotencyKey string // optional; reuse it when retrying the same turn
}

// Result is a completed turn.
type Result struct {
	Content        string
	ResponseTimeMs int64
	Replayed       bool
}

// StreamError carries the visitor-facing text of an error frame and the
// content received before it.
type StreamError struct {
	Message string
	Partial string
}

func (e *StreamError) Error() string { return "widgetclient: stream failed: " + e.Message }
func (e *StreamError) Is(target error) bool { return target == ErrStreamFailed }

// WidgetConfig is the chatbot's public appearance.
type WidgetConfig struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	PrimaryColor   string  `json:"primaryColor"`
	TextColor      string  `json:"textColor"`
	Position       string  `json:"position"`
	WelcomeMessage string  `json:"welcomeMessage"`
	AvatarURL      *string `json:"avatarUrl"`
	Placeholder    string  `json:"placeholder"`
}

// Rating is a stored conversation rating.
type Rating struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversationId"`
	Rating         int       `json:"rating"`
	Feedback       *string   `json:"feedback"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Message is one transcript entry.
type Message struct {
	ID             uint      `json:"id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Page is one page of a transcript.
type Page struct {
	Messages   []Message `json:"messages"`
	Pagination struct {
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
		HasNext    bool  `json:"has_next"`
	} `json:"pagination"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/widget/" + url.PathEscape(c.ChatbotID) + path
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Chat sends one turn and streams the reply. onFragment, when non-nil, is
// called for every content frame in order. There is no automatic retry.
func (c *Client) Chat(ctx context.Context, in ChatRequest, onFragment func(string)) (*Result, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/chat", map[string]string{
		"message":   in.Message,
		"sessionId": in.SessionID,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if in.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", in.IdempotencyKey)
		req.Header.Set("X-Session-ID", in.SessionID)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return nil, decodeAPIError(resp)
	}

	res := &Result{Replayed: resp.Header.Get("Idempotency-Replayed") == "true"}
	var sb strings.Builder
	dec := sse.NewDecoder(resp.Body)
	for {
		f, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrIncompleteStream
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", ErrIncompleteStream, err)
		}
		ev, ok := sse.ParseEvent(f.Data)
		if !ok {
			continue
		}
		switch ev.Kind {
		case sse.KindContent:
			sb.WriteString(ev.Content)
			if onFragment != nil {
				onFragment(ev.Content)
			}
		case sse.KindDone:
			res.Content = sb.String()
			res.ResponseTimeMs = ev.ResponseTimeMs
			return res, nil
		case sse.KindError:
			return nil, &StreamError{Message: ev.Error, Partial: sb.String()}
		}
	}
}

// Config fetches the widget config.
func (c *Client) Config(ctx context.Context) (*WidgetConfig, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/config", nil)
	if err != nil {
		return nil, err
	}
	var out WidgetConfig
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rate rates the session's conversation. Empty feedback is sent as absent.
func (c *Client) Rate(ctx context.Context, sessionID string, rating int, feedback string) (*Rating, error) {
	body := map[string]any{"sessionId": sessionID, "rating": rating}
	if feedback != "" {
		body["feedback"] = feedback
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/rating", body)
	if err != nil {
		return nil, err
	}
	var out Rating
	if err := c.doJSON(req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches one transcript page. page and pageSize <= 0 use the
// server defaults.
func (c *Client) History(ctx context.Context, sessionID string, page, pageSize int) (*Page, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/messages", nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{"sessionId": {sessionID}}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	req.URL.RawQuery = q.Encode()

	var out Page
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(req *http.Request, want int, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("widgetclient: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	e := &APIError{Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(b, e); err != nil || e.Code == "" {
		e.Code = "unexpected_response"
		e.Message = strings.TrimSpace(string(b))
		if e.Message == "" {
			e.Message = resp.Status
		}
	}
	return e
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/services"
	"github.com/tbourn/go-widget-chat/internal/sse"
)

// ---------- stub services ----------

type stubChat struct {
	replay   func(ctx context.Context, req services.ChatRequest) (*domain.Message, error)
	stream   func(ctx context.Context, req services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error)
	got      services.ChatRequest
	streamed bool
}

func (s *stubChat) Replay(ctx context.Context, req services.ChatRequest) (*domain.Message, error) {
	s.got = req
	if s.replay == nil {
		return nil, nil
	}
	return s.replay(ctx, req)
}

func (s *stubChat) ReplayTo(msg *domain.Message, sink services.StreamSink) (*services.ChatResult, error) {
	if err := sink.Content(msg.Content); err != nil {
		return nil, services.ErrClientGone
	}
	if err := sink.Done(*msg.ResponseTimeMs); err != nil {
		return nil, services.ErrClientGone
	}
	return &services.ChatResult{MessageID: msg.ID, Content: msg.Content, Replayed: true}, nil
}

func (s *stubChat) Stream(ctx context.Context, req services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error) {
	s.got = req
	s.streamed = true
	return s.stream(ctx, req, sink)
}

type stubWidget struct {
	cfg *services.WidgetConfig
	err error
}

func (s stubWidget) Config(context.Context, string) (*services.WidgetConfig, error) {
	return s.cfg, s.err
}

type stubRating struct {
	got services.RatingRequest
	out *domain.Rating
	err error
}

func (s *stubRating) Rate(_ context.Context, req services.RatingRequest) (*domain.Rating, error) {
	s.got = req
	return s.out, s.err
}

type stubTranscript struct {
	count    int64
	maxID    uint
	statsErr error
	items    []domain.Message
	total    int64
	listErr  error

	listCalls int
	page      int
	pageSize  int
}

func (s *stubTranscript) Stats(context.Context, string, string) (int64, uint, error) {
	return s.count, s.maxID, s.statsErr
}

func (s *stubTranscript) ListPage(_ context.Context, _, _ string, page, pageSize int) ([]domain.Message, int64, error) {
	s.listCalls++
	s.page, s.pageSize = page, pageSize
	return s.items, s.total, s.listErr
}

// ---------- router + request helpers ----------

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	g := r.Group("/api/v1/widget/:chatbotId")
	g.POST("/chat", h.PostChat)
	g.GET("/config", h.GetWidgetConfig)
	g.POST("/rating", h.PostRating)
	g.GET("/messages", h.ListMessages)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return er
}

// events decodes an SSE body with the package's own client half.
func events(t *testing.T, body string) []sse.Event {
	t.Helper()
	dec := sse.NewDecoder(strings.NewReader(body))
	var out []sse.Event
	for {
		f, err := dec.Next()
		if err != nil {
			break
		}
		if ev, ok := sse.ParseEvent(f.Data); ok {
			out = append(out, ev)
		}
	}
	return out
}

func i64(v int64) *int64 { return &v }

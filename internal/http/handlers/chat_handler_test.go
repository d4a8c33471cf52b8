package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/http/middleware"
	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/services"
	"github.com/tbourn/go-widget-chat/internal/sse"
)

const chatPath = "/api/v1/widget/bot-1/chat"

func TestPostChat_StreamsFragmentsThenDone(t *testing.T) {
	chat := &stubChat{stream: func(_ context.Context, _ services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error) {
		for _, f := range []string{"¡Ho", "la!", " ¿En qué puedo ayudarte?"} {
			if err := sink.Content(f); err != nil {
				return nil, err
			}
		}
		_ = sink.Done(42)
		return &services.ChatResult{MessageID: 2, ResponseTimeMs: 42}, nil
	}}
	r := newRouter(New(chat, nil, nil, nil))

	w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "Hola", "sessionId": "s-1"}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	if w.Header().Get(HeaderReplayed) != "" {
		t.Fatal("fresh turn must not be marked replayed")
	}
	evs := events(t, w.Body.String())
	if len(evs) != 4 {
		t.Fatalf("events=%+v", evs)
	}
	var sb strings.Builder
	for _, ev := range evs[:3] {
		if ev.Kind != sse.KindContent {
			t.Fatalf("expected content, got %+v", ev)
		}
		sb.WriteString(ev.Content)
	}
	if sb.String() != "¡Hola! ¿En qué puedo ayudarte?" {
		t.Fatalf("joined=%q", sb.String())
	}
	if evs[3].Kind != sse.KindDone || evs[3].ResponseTimeMs != 42 {
		t.Fatalf("terminal=%+v", evs[3])
	}
	if chat.got.ChatbotID != "bot-1" || chat.got.SessionID != "s-1" || chat.got.Message != "Hola" {
		t.Fatalf("request passed to service: %+v", chat.got)
	}
}

func TestPostChat_PreStreamErrorsAreJSON(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: message too long", services.ErrInvalidRequest), http.StatusBadRequest, ErrCodeBadRequest},
		{"missing chatbot", services.ErrChatbotNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"inactive", services.ErrChatbotInactive, http.StatusForbidden, ErrCodeChatbotInactive},
		{"provider auth", fmt.Errorf("open openai stream: %w", &provider.Error{Provider: "openai", Kind: provider.KindAuth, Status: 401, Err: errors.New("bad key sk-123")}), http.StatusBadGateway, ErrCodeProvider},
		{"provider timeout", &provider.Error{Provider: "gemini", Kind: provider.KindTimeout}, http.StatusGatewayTimeout, ErrCodeProviderTimeout},
		{"store", errors.New("disk I/O error"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &stubChat{stream: func(context.Context, services.ChatRequest, services.StreamSink) (*services.ChatResult, error) {
				return nil, tc.err
			}}
			r := newRouter(New(chat, nil, nil, nil))
			w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "hi", "sessionId": "s"}, nil)

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			er := decodeError(t, w)
			if er.Code != tc.code || er.RequestID != "rid-test" {
				t.Fatalf("envelope=%+v", er)
			}
			for _, leak := range []string{"sk-123", "disk I/O"} {
				if strings.Contains(w.Body.String(), leak) {
					t.Fatalf("backend detail leaked: %s", w.Body.String())
				}
			}
		})
	}
}

func TestPostChat_BadBody(t *testing.T) {
	chat := &stubChat{stream: func(context.Context, services.ChatRequest, services.StreamSink) (*services.ChatResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	r := newRouter(New(chat, nil, nil, nil))

	for _, body := range []any{"{not json", map[string]string{"message": "hi"}, map[string]string{"sessionId": "s"}} {
		w := doJSON(t, r, http.MethodPost, chatPath, body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status=%d", body, w.Code)
		}
		if er := decodeError(t, w); er.Code != ErrCodeBadRequest {
			t.Fatalf("code=%q", er.Code)
		}
	}
}

func TestPostChat_MidStreamFailureEndsWithErrorFrame(t *testing.T) {
	chat := &stubChat{stream: func(_ context.Context, _ services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error) {
		_ = sink.Content("partial")
		return nil, errors.New("store assistant message: locked")
	}}
	r := newRouter(New(chat, nil, nil, nil))
	w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "hi", "sessionId": "s"}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	evs := events(t, w.Body.String())
	if len(evs) != 2 || evs[0].Content != "partial" || evs[1].Kind != sse.KindError {
		t.Fatalf("events=%+v", evs)
	}
	if evs[1].Error != services.GenericStreamError {
		t.Fatalf("error text=%q", evs[1].Error)
	}
}

func TestPostChat_ServiceWrittenErrorFrameIsNotDuplicated(t *testing.T) {
	chat := &stubChat{stream: func(_ context.Context, _ services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error) {
		_ = sink.Content("par")
		_ = sink.Error(services.GenericStreamError)
		return &services.ChatResult{Partial: true}, &provider.Error{Provider: "openai", Kind: provider.KindNetwork}
	}}
	r := newRouter(New(chat, nil, nil, nil))
	w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "hi", "sessionId": "s"}, nil)

	if n := strings.Count(w.Body.String(), `"error"`); n != 1 {
		t.Fatalf("error frames=%d body=%s", n, w.Body.String())
	}
}

func TestPostChat_ClientGoneWritesNothingMore(t *testing.T) {
	chat := &stubChat{stream: func(_ context.Context, _ services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error) {
		_ = sink.Content("a")
		return nil, services.ErrClientGone
	}}
	r := newRouter(New(chat, nil, nil, nil))
	w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "hi", "sessionId": "s"}, nil)

	evs := events(t, w.Body.String())
	if len(evs) != 1 || evs[0].Kind != sse.KindContent {
		t.Fatalf("events=%+v", evs)
	}
}

func TestPostChat_Replay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chat := &stubChat{
		replay: func(_ context.Context, req services.ChatRequest) (*domain.Message, error) {
			if req.IdempotencyKey != "turn-1" {
				return nil, nil
			}
			return &domain.Message{ID: 9, Role: domain.RoleAssistant, Content: "¡Hola!", ResponseTimeMs: i64(120)}, nil
		},
		stream: func(context.Context, services.ChatRequest, services.StreamSink) (*services.ChatResult, error) {
			return nil, errors.New("stream must not run on replay")
		},
	}
	h := New(chat, nil, nil, nil)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/api/v1/widget/:chatbotId/chat", h.PostChat)

	w := doJSON(t, r, http.MethodPost, chatPath,
		map[string]string{"message": "Hola", "sessionId": "s-1"},
		map[string]string{middleware.HeaderIdempotencyKey: "turn-1"})

	if w.Code != http.StatusOK || w.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("status=%d replayed=%q", w.Code, w.Header().Get(HeaderReplayed))
	}
	evs := events(t, w.Body.String())
	if len(evs) != 2 || evs[0].Content != "¡Hola!" || evs[1].Kind != sse.KindDone || evs[1].ResponseTimeMs != 120 {
		t.Fatalf("events=%+v", evs)
	}
	if chat.streamed {
		t.Fatal("Stream called on replay")
	}
}

func TestPostChat_ReplayLookupError(t *testing.T) {
	chat := &stubChat{
		replay: func(context.Context, services.ChatRequest) (*domain.Message, error) {
			return nil, services.ErrChatbotInactive
		},
	}
	r := newRouter(New(chat, nil, nil, nil))
	w := doJSON(t, r, http.MethodPost, chatPath, map[string]string{"message": "hi", "sessionId": "s"}, nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	if chat.streamed {
		t.Fatal("Stream called after failed replay lookup")
	}
}

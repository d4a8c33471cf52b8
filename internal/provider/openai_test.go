package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedRequest struct {
	Auth string
	Path string
	Body map[string]any
}

// openAIServer speaks the chat-completions streaming wire format.
func openAIServer(t *testing.T, status int, fragments []string, hang bool) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = capturedRequest{Auth: r.Header.Get("Authorization"), Path: r.URL.Path, Body: body}
		mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream secret detail","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		// role-only delta first, as the hosted API does
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		for _, f := range fragments {
			b, _ := json.Marshal(f)
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", b)
			fl.Flush()
		}
		if hang {
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var out []string
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func sampleRequest() Request {
	return Request{
		Model:       "gpt-4o-mini",
		MaxTokens:   64,
		Temperature: 0.5,
		Messages: []Message{
			{Role: RoleSystem, Content: "Eres un asistente útil."},
			{Role: RoleUser, Content: "Hola"},
		},
	}
}

func TestOpenAI_StreamsFragments(t *testing.T) {
	srv, captured := openAIServer(t, http.StatusOK, []string{"¡Ho", "la!", " ¿Qué tal?"}, false)
	p := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	s, err := p.Stream(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	frags, err := drain(t, s)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if strings.Join(frags, "") != "¡Hola! ¿Qué tal?" || len(frags) != 3 {
		t.Fatalf("fragments = %q", frags)
	}

	req := captured()
	if req.Auth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", req.Auth)
	}
	if req.Path != "/v1/chat/completions" {
		t.Fatalf("path = %q", req.Path)
	}
	if req.Body["model"] != "gpt-4o-mini" || req.Body["stream"] != true {
		t.Fatalf("body = %v", req.Body)
	}
	if mt, _ := req.Body["max_tokens"].(float64); mt != 64 {
		t.Fatalf("max_tokens = %v", req.Body["max_tokens"])
	}
	msgs, _ := req.Body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", req.Body["messages"])
	}
	if p.Name() != "openai" {
		t.Fatalf("Name = %q", p.Name())
	}
}

func TestOpenAI_StatusErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusInternalServerError, KindUpstream},
		{http.StatusServiceUnavailable, KindUpstream},
	}
	for _, c := range cases {
		srv, _ := openAIServer(t, c.status, nil, false)
		p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
		_, err := p.Stream(context.Background(), sampleRequest())
		if !errors.Is(err, ErrProvider) {
			t.Fatalf("status %d: want ErrProvider, got %v", c.status, err)
		}
		var pe *Error
		if !errors.As(err, &pe) || pe.Kind != c.want || pe.Status != c.status {
			t.Fatalf("status %d: got %+v; want kind %q", c.status, pe, c.want)
		}
	}
}

func TestOpenAI_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens anymore

	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: url + "/v1"})
	_, err := p.Stream(context.Background(), sampleRequest())
	if KindOf(err) != KindNetwork {
		t.Fatalf("want network error, got %v (kind %q)", err, KindOf(err))
	}
}

func TestOpenAI_TimeoutMidStream(t *testing.T) {
	srv, _ := openAIServer(t, http.StatusOK, []string{"partial"}, true)
	p := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s, err := p.Stream(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	frags, err := drain(t, s)
	if len(frags) != 1 || frags[0] != "partial" {
		t.Fatalf("fragments before timeout = %q", frags)
	}
	if KindOf(err) != KindTimeout {
		t.Fatalf("want timeout, got %v", err)
	}
}

func TestCustom_NoKeySendsNoAuthorization(t *testing.T) {
	srv, captured := openAIServer(t, http.StatusOK, []string{"ok"}, false)
	p, err := NewCustom(CustomConfig{Endpoint: srv.URL + "/v1/chat/completions"})
	if err != nil {
		t.Fatalf("NewCustom: %v", err)
	}
	if p.Name() != "custom" {
		t.Fatalf("Name = %q", p.Name())
	}
	s, err := p.Stream(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if frags, err := drain(t, s); err != nil || len(frags) != 1 {
		t.Fatalf("drain = %q, %v", frags, err)
	}
	req := captured()
	if req.Auth != "" {
		t.Fatalf("Authorization should be absent, got %q", req.Auth)
	}
	if req.Path != "/v1/chat/completions" {
		t.Fatalf("path = %q (suffix not normalised)", req.Path)
	}
}

func TestCustom_WithKey(t *testing.T) {
	srv, captured := openAIServer(t, http.StatusOK, []string{"ok"}, false)
	p, err := NewCustom(CustomConfig{Endpoint: srv.URL + "/v1", APIKey: "tenant-key"})
	if err != nil {
		t.Fatalf("NewCustom: %v", err)
	}
	s, _ := p.Stream(context.Background(), sampleRequest())
	_, _ = drain(t, s)
	if got := captured().Auth; got != "Bearer tenant-key" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestOpenAI_ZeroTemperatureIsSent(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   float64
		want func(float64) bool
	}{
		{"zero", 0, func(v float64) bool { return v > 0 && v < 1e-6 }},
		{"tenant value", 0.5, func(v float64) bool { return v == 0.5 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, captured := openAIServer(t, http.StatusOK, []string{"ok"}, false)
			p := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

			req := sampleRequest()
			req.Temperature = tc.in
			s, err := p.Stream(context.Background(), req)
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			if _, err := drain(t, s); err != nil {
				t.Fatalf("Recv: %v", err)
			}

			got, present := captured().Body["temperature"].(float64)
			if !present || !tc.want(got) {
				t.Fatalf("temperature on the wire = %v (present %v)", captured().Body["temperature"], present)
			}
		})
	}
}


// Package sse implements the widget's event-stream wire format.
//
// Every frame is a single "data: <json>\n\n" event. A stream carries zero or
// more {"content": string} frames followed by exactly one terminal frame,
// either {"done": true, "responseTimeMs": n} or {"error": string}.
//
// Writer is the server half; Decoder and ParseEvent are the client half and
// are also used to read upstream providers that speak text/event-stream.
package sse

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrClosed is returned by Writer after a terminal frame was written.
var ErrClosed = errors.New("sse: stream closed")

type contentFrame struct {
	Content string `json:"content"`
}

type doneFrame struct {
	Done           bool  `json:"done"`
	ResponseTimeMs int64 `json:"responseTimeMs"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Writer frames events onto an http.ResponseWriter. Headers are sent with
// the first frame, so a handler can still answer with a plain JSON error as
// long as Started reports false.
type Writer struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	closed  bool
}

// NewWriter wraps w. Nothing is written until the first frame.
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether any byte has been sent to the client.
func (s *Writer) Started() bool { return s.started }

// Closed reports whether a terminal frame was written.
func (s *Writer) Closed() bool { return s.closed }

// Content sends one text fragment.
func (s *Writer) Content(text string) error {
	return s.frame(contentFrame{Content: text}, false)
}

// Done sends the completion frame and closes the stream.
func (s *Writer) Done(responseTimeMs int64) error {
	return s.frame(doneFrame{Done: true, ResponseTimeMs: responseTimeMs}, true)
}

// Error sends the failure frame and closes the stream.
func (s *Writer) Error(msg string) error {
	return s.frame(errorFrame{Error: msg}, true)
}

func (s *Writer) frame(v any, terminal bool) error {
	if s.closed {
		return ErrClosed
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if terminal {
		s.closed = true
	}

	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := s.w.Write(buf); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

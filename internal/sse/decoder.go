package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Frame is one dispatched event. Data joins multiple data lines with "\n".
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Decoder reads events from a byte stream that may split a frame across
// reads or deliver several frames in one read. An event is only returned
// once its terminating blank line has arrived.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 16<<10)}
}

// Next returns the next complete frame. It returns io.EOF when the stream
// ends cleanly between frames and io.ErrUnexpectedEOF when it ends inside
// one. Comment lines and blank lines without data are skipped.
func (d *Decoder) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		pending bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if pending || line != "" {
					return Frame{}, io.ErrUnexpectedEOF
				}
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if len(data) == 0 {
				pending = false
				f = Frame{}
				continue
			}
			f.Data = strings.Join(data, "\n")
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		pending = true
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		}
	}
}

// Kind classifies a widget event.
type Kind int

const (
	KindContent Kind = iota + 1
	KindDone
	KindError
)

// Event is a decoded widget frame.
type Event struct {
	Kind           Kind
	Content        string
	ResponseTimeMs int64
	Error          string
}

type wireEvent struct {
	Content        *string `json:"content"`
	Done           *bool   `json:"done"`
	ResponseTimeMs *int64  `json:"responseTimeMs"`
	Error          *string `json:"error"`
}

// ParseEvent decodes a frame payload. ok is false for payloads that are not
// one of the three known shapes; callers skip those.
func ParseEvent(data string) (ev Event, ok bool) {
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return Event{}, false
	}
	switch {
	case w.Error != nil:
		return Event{Kind: KindError, Error: *w.Error}, true
	case w.Done != nil && *w.Done:
		ev := Event{Kind: KindDone}
		if w.ResponseTimeMs != nil {
			ev.ResponseTimeMs = *w.ResponseTimeMs
		}
		return ev, true
	case w.Content != nil:
		return Event{Kind: KindContent, Content: *w.Content}, true
	}
	return Event{}, false
}

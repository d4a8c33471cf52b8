// Package providertest offers a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tbourn/go-widget-chat/internal/provider"
)

// Fake replays Fragments. When FailAfter >= 0 the stream returns Err after
// that many fragments. OpenErr fails the call before any fragment. Hang
// blocks after the last fragment until the context ends.
type Fake struct {
	ProviderName string
	Fragments    []string
	FailAfter    int
	Err          error
	OpenErr      error
	Hang         bool
	Delay        time.Duration

	mu       sync.Mutex
	requests []provider.Request
	closed   int
}

// New returns a Fake that streams fragments and completes normally.
func New(fragments ...string) *Fake {
	return &Fake{ProviderName: "fake", Fragments: fragments, FailAfter: -1}
}

// Failing returns a Fake that fails with err after n fragments.
func Failing(n int, err error, fragments ...string) *Fake {
	f := New(fragments...)
	f.FailAfter = n
	f.Err = err
	return f
}

func (f *Fake) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

// Requests returns a copy of every request received.
func (f *Fake) Requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Closed reports how many streams were closed.
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, provider.Classify(f.Name(), ctx, f.OpenErr)
	}
	return &stream{f: f, ctx: ctx}, nil
}

type stream struct {
	f    *Fake
	ctx  context.Context
	next int
	done bool
}

func (s *stream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", provider.Classify(s.f.Name(), s.ctx, err)
	}
	if s.f.FailAfter >= 0 && s.next >= s.f.FailAfter {
		err := s.f.Err
		if err == nil {
			err = errors.New("scripted failure")
		}
		return "", provider.Classify(s.f.Name(), s.ctx, err)
	}
	if s.next >= len(s.f.Fragments) {
		if s.f.Hang {
			<-s.ctx.Done()
			return "", provider.Classify(s.f.Name(), s.ctx, s.ctx.Err())
		}
		return "", io.EOF
	}
	if s.f.Delay > 0 {
		select {
		case <-time.After(s.f.Delay):
		case <-s.ctx.Done():
			return "", provider.Classify(s.f.Name(), s.ctx, s.ctx.Err())
		}
	}
	frag := s.f.Fragments[s.next]
	s.next++
	return frag, nil
}

func (s *stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

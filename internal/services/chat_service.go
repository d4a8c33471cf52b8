// Package services – ChatService
//
// This file implements the chat orchestrator. One call to Stream handles one
// visitor turn: it binds the session to a conversation, stores the visitor
// message, assembles the system prompt from the chatbot's knowledge base,
// streams the provider reply to the visitor fragment by fragment, and stores
// the assistant message with its response time.
//
// Failure policy:
//   - Validation, lookup and provider-open failures return before any frame
//     is written, so the handler can still answer with a JSON error.
//   - Once a fragment has been forwarded, failures persist the partial reply
//     and end the stream with a generic error frame.
//   - A disconnected visitor stops the provider stream; the partial reply is
//     persisted on a context detached from the request.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/knowledge"
	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/repo"
)

// GenericStreamError is the only failure text a visitor sees mid-stream.
const GenericStreamError = "The assistant is unavailable right now. Please try again."

const (
	DefaultSystemPrompt    = "You are a helpful assistant."
	DefaultMaxMessageRunes = 4000
	DefaultProviderTimeout = 120 * time.Second
	DefaultPersistTimeout  = 5 * time.Second
	DefaultReplayTTL       = 24 * time.Hour
)

// ChatRequest is one inbound visitor message.
type ChatRequest struct {
	ChatbotID      string
	SessionID      string
	Message        string
	IdempotencyKey string
}

// ChatResult describes what was stored for the assistant turn.
type ChatResult struct {
	ConversationID uint
	MessageID      uint // 0 when no assistant message was stored
	Content        string
	ResponseTimeMs int64
	Partial        bool
	Replayed       bool
}

// ChatOptions tunes a ChatService. Zero values select the defaults above.
type ChatOptions struct {
	DefaultSystemPrompt string
	MaxMessageRunes     int
	KnowledgeMaxRunes   int
	ProviderTimeout     time.Duration
	PersistTimeout      time.Duration
	ReplayTTL           time.Duration
}

// ChatService orchestrates visitor turns.
type ChatService struct {
	Chatbots      ChatbotSource
	Knowledge     KnowledgeSource
	Conversations ConversationStore
	Replays       ReplayStore // nil disables idempotent replay
	Providers     ProviderSelector
	Assembler     *knowledge.Assembler

	DefaultSystemPrompt string
	MaxMessageRunes     int
	ProviderTimeout     time.Duration
	PersistTimeout      time.Duration
	ReplayTTL           time.Duration

	now func() time.Time
}

// NewChatService wires a ChatService over a single store.
func NewChatService(store *repo.Store, sel ProviderSelector, opts ChatOptions) *ChatService {
	var kopts []knowledge.Option
	if opts.KnowledgeMaxRunes > 0 {
		kopts = append(kopts, knowledge.WithMaxRunes(opts.KnowledgeMaxRunes))
	}
	return &ChatService{
		Chatbots:            store,
		Knowledge:           store,
		Conversations:       store,
		Replays:             store,
		Providers:           sel,
		Assembler:           knowledge.New(kopts...),
		DefaultSystemPrompt: opts.DefaultSystemPrompt,
		MaxMessageRunes:     opts.MaxMessageRunes,
		ProviderTimeout:     opts.ProviderTimeout,
		PersistTimeout:      opts.PersistTimeout,
		ReplayTTL:           opts.ReplayTTL,
	}
}

func (s *ChatService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *ChatService) providerTimeout() time.Duration {
	if s.ProviderTimeout > 0 {
		return s.ProviderTimeout
	}
	return DefaultProviderTimeout
}

func (s *ChatService) persistTimeout() time.Duration {
	if s.PersistTimeout > 0 {
		return s.PersistTimeout
	}
	return DefaultPersistTimeout
}

func (s *ChatService) replayTTL() time.Duration {
	if s.ReplayTTL > 0 {
		return s.ReplayTTL
	}
	return DefaultReplayTTL
}

func (s *ChatService) maxMessageRunes() int {
	if s.MaxMessageRunes > 0 {
		return s.MaxMessageRunes
	}
	return DefaultMaxMessageRunes
}

func (s *ChatService) assembler() *knowledge.Assembler {
	if s.Assembler != nil {
		return s.Assembler
	}
	return knowledge.New()
}

// normalize trims the request and validates it. It never touches storage.
func (s *ChatService) normalize(req ChatRequest) (ChatRequest, error) {
	req.ChatbotID = strings.TrimSpace(req.ChatbotID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Message = strings.TrimSpace(req.Message)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.ChatbotID == "" {
		return req, fmt.Errorf("%w: chatbot id is required", ErrInvalidRequest)
	}
	if req.Message == "" || req.SessionID == "" {
		return req, fmt.Errorf("%w: message and sessionId are required", ErrInvalidRequest)
	}
	if limit := s.maxMessageRunes(); utf8.RuneCountInString(req.Message) > limit {
		return req, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, limit)
	}
	return req, nil
}

// activeChatbot loads a chatbot that may serve visitors.
func activeChatbot(ctx context.Context, src ChatbotSource, id string) (*domain.Chatbot, error) {
	cb, err := src.GetChatbot(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatbotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chatbot: %w", err)
	}
	if !cb.IsActive {
		return nil, ErrChatbotInactive
	}
	return cb, nil
}

// Replay returns the assistant message of a completed turn recorded under
// req.IdempotencyKey, or nil when there is nothing to replay.
func (s *ChatService) Replay(ctx context.Context, req ChatRequest) (*domain.Message, error) {
	if s.Replays == nil || strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, nil
	}
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	if _, err := activeChatbot(ctx, s.Chatbots, req.ChatbotID); err != nil {
		return nil, err
	}
	rec, err := s.Replays.GetIdempotency(ctx, req.ChatbotID, req.SessionID, req.IdempotencyKey, s.clock().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup replay: %w", err)
	}
	msg, err := s.Replays.GetMessage(ctx, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load replayed message: %w", err)
	}
	return msg, nil
}

// ReplayTo writes a stored assistant message as one content frame and a
// done frame.
func (s *ChatService) ReplayTo(msg *domain.Message, sink StreamSink) (*ChatResult, error) {
	var ms int64 = 1
	if msg.ResponseTimeMs != nil && *msg.ResponseTimeMs > 0 {
		ms = *msg.ResponseTimeMs
	}
	if msg.Content != "" {
		if err := sink.Content(msg.Content); err != nil {
			return nil, ErrClientGone
		}
	}
	if err := sink.Done(ms); err != nil {
		return nil, ErrClientGone
	}
	chatTurns.WithLabelValues(replayProvider, outcomeReplay).Inc()
	return &ChatResult{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        msg.Content,
		ResponseTimeMs: ms,
		Replayed:       true,
	}, nil
}

// Stream runs one visitor turn and writes its frames to sink.
//
// Errors returned while nothing was written to sink (ErrInvalidRequest,
// ErrChatbotNotFound, ErrChatbotInactive, errors matching ErrProvider, store
// errors) leave the sink untouched. After the first fragment, failures are
// reported to the visitor by an error frame and also returned for logging.
func (s *ChatService) Stream(ctx context.Context, req ChatRequest, sink StreamSink) (*ChatResult, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "ChatService.Stream",
		trace.WithAttributes(attribute.String("chatbot.id", req.ChatbotID)),
	)
	defer span.End()

	res, err := s.stream(ctx, span, req, sink)
	if err != nil && !errors.Is(err, ErrClientGone) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *ChatService) stream(ctx context.Context, span trace.Span, req ChatRequest, sink StreamSink) (*ChatResult, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	cb, err := activeChatbot(ctx, s.Chatbots, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	p, err := s.Providers.For(cb)
	if err != nil {
		chatTurns.WithLabelValues(cb.AIProvider, outcomeProviderErr).Inc()
		return nil, fmt.Errorf("select provider: %w", err)
	}
	span.SetAttributes(attribute.String("ai.provider", p.Name()), attribute.String("ai.model", cb.ModelFor()))

	conv, created, err := s.Conversations.FindOrCreateConversation(ctx, cb.ID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("bind conversation: %w", err)
	}
	span.SetAttributes(
		attribute.Int64("conversation.id", int64(conv.ID)),
		attribute.Bool("conversation.created", created),
	)

	if _, err := s.Conversations.AppendMessage(ctx, conv.ID, domain.RoleUser, req.Message, nil); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	history, items, err := s.snapshot(ctx, cb.ID, conv.ID)
	if err != nil {
		return nil, err
	}

	preq := provider.Request{
		Messages:    s.buildMessages(cb, items, history, req.Message),
		Model:       cb.ModelFor(),
		MaxTokens:   cb.MaxTokens,
		Temperature: cb.Temperature,
	}
	t := &turn{
		svc:  s,
		p:    p,
		req:  req,
		sink: sink,
		res:  &ChatResult{ConversationID: conv.ID},
		lg: zerolog.Ctx(ctx).With().
			Str("provider", p.Name()).
			Uint("conversation_id", conv.ID).
			Logger(),
	}
	return t.run(ctx, preq)
}

// snapshot reads history and knowledge once, concurrently.
func (s *ChatService) snapshot(ctx context.Context, chatbotID string, conversationID uint) ([]domain.Message, []domain.KnowledgeItem, error) {
	var (
		history []domain.Message
		items   []domain.KnowledgeItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.Conversations.ListMessages(gctx, conversationID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = s.Knowledge.ListKnowledgeItems(gctx, chatbotID)
		if err != nil {
			return fmt.Errorf("load knowledge: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return history, items, nil
}

// buildMessages returns the system entry followed by the full history.
func (s *ChatService) buildMessages(cb *domain.Chatbot, items []domain.KnowledgeItem, history []domain.Message, query string) []provider.Message {
	base := cb.SystemPrompt
	if strings.TrimSpace(base) == "" {
		base = s.DefaultSystemPrompt
	}
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}

	out := make([]provider.Message, 0, len(history)+1)
	out = append(out, provider.Message{
		Role:    provider.RoleSystem,
		Content: s.assembler().SystemPrompt(base, items, query),
	})
	for _, m := range history {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// turn holds the state of one provider stream.
type turn struct {
	svc       *ChatService
	p         provider.Provider
	req       ChatRequest
	sink      StreamSink
	res       *ChatResult
	lg        zerolog.Logger
	acc       strings.Builder
	forwarded int
}

func (t *turn) run(ctx context.Context, preq provider.Request) (*ChatResult, error) {
	name := t.p.Name()
	pctx, cancel := context.WithTimeout(ctx, t.svc.providerTimeout())
	defer cancel()

	start := t.svc.clock()
	stream, err := t.p.Stream(pctx, preq)
	if err != nil {
		if ctx.Err() != nil {
			chatTurns.WithLabelValues(name, outcomeClientGone).Inc()
			return nil, ErrClientGone
		}
		perr := provider.Classify(name, pctx, err)
		chatTurns.WithLabelValues(name, outcomeProviderErr).Inc()
		t.lg.Warn().Err(perr).Str("kind", string(perr.Kind)).Msg("provider stream failed to open")
		return nil, fmt.Errorf("open %s stream: %w", name, perr)
	}
	defer stream.Close()

	for {
		frag, rerr := stream.Recv()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				_ = stream.Close()
				return t.clientGone(ctx)
			}
			return t.fail(ctx, provider.Classify(name, pctx, rerr))
		}

		t.acc.WriteString(frag)
		if werr := t.sink.Content(frag); werr != nil {
			_ = stream.Close()
			return t.clientGone(ctx)
		}
		t.forwarded++
		chatFragments.WithLabelValues(name).Inc()
	}

	elapsed := t.svc.clock().Sub(start)
	ms := elapsed.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	msg, err := t.persist(ctx, &ms)
	if err != nil {
		chatTurns.WithLabelValues(name, outcomeStoreErr).Inc()
		if t.forwarded > 0 {
			_ = t.sink.Error(GenericStreamError)
		}
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	t.res.MessageID = msg.ID
	t.res.Content = msg.Content
	t.res.ResponseTimeMs = ms

	if err := t.sink.Done(ms); err != nil {
		t.lg.Debug().Err(err).Msg("visitor left before done frame")
	}
	t.recordReplay(ctx, msg.ID)

	chatTurns.WithLabelValues(name, outcomeOK).Inc()
	chatLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	return t.res, nil
}

// fail handles a provider error that is not a disconnect.
func (t *turn) fail(ctx context.Context, perr *provider.Error) (*ChatResult, error) {
	name := t.p.Name()
	t.lg.Warn().Err(perr).Str("kind", string(perr.Kind)).Int("fragments", t.forwarded).Msg("provider stream failed")

	if t.forwarded == 0 {
		chatTurns.WithLabelValues(name, outcomeProviderErr).Inc()
		return nil, fmt.Errorf("%s stream: %w", name, perr)
	}

	chatTurns.WithLabelValues(name, outcomePartial).Inc()
	t.persistPartial(ctx)
	_ = t.sink.Error(GenericStreamError)
	return t.res, fmt.Errorf("%s stream interrupted after %d fragments: %w", name, t.forwarded, perr)
}

func (t *turn) clientGone(ctx context.Context) (*ChatResult, error) {
	chatTurns.WithLabelValues(t.p.Name(), outcomeClientGone).Inc()
	t.lg.Info().Int("fragments", t.forwarded).Msg("visitor disconnected mid-stream")
	t.persistPartial(ctx)
	return t.res, ErrClientGone
}

func (t *turn) persistPartial(ctx context.Context) {
	if t.acc.Len() == 0 {
		return
	}
	msg, err := t.persist(ctx, nil)
	if err != nil {
		t.lg.Error().Err(err).Msg("store partial assistant message")
		return
	}
	t.res.MessageID = msg.ID
	t.res.Content = msg.Content
	t.res.Partial = true
}

// persist writes the assistant message on a context that survives the
// request so a disconnect cannot drop what the visitor already saw.
func (t *turn) persist(ctx context.Context, responseTimeMs *int64) (*domain.Message, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.svc.persistTimeout())
	defer cancel()
	return t.svc.Conversations.AppendMessage(wctx, t.res.ConversationID, domain.RoleAssistant, t.acc.String(), responseTimeMs)
}

func (t *turn) recordReplay(ctx context.Context, messageID uint) {
	if t.svc.Replays == nil || t.req.IdempotencyKey == "" {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.svc.persistTimeout())
	defer cancel()
	_, err := t.svc.Replays.CreateIdempotency(wctx, t.req.ChatbotID, t.req.SessionID, t.req.IdempotencyKey, messageID, t.svc.replayTTL())
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		t.lg.Warn().Err(err).Msg("record idempotency key")
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-widget-chat/internal/repo"
)

func TestRatingService_Rate(t *testing.T) {
	st := newStore(t)
	cb := seedBot(t, st, "bot-r", true)
	if _, _, err := st.FindOrCreateConversation(context.Background(), cb.ID, "s-1"); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	svc := &RatingService{Chatbots: st, Store: st}

	r, err := svc.Rate(context.Background(), RatingRequest{ChatbotID: cb.ID, SessionID: "s-1", Rating: 5, Feedback: "  Muy útil  "})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if r.Rating != 5 || r.Feedback == nil || *r.Feedback != "Muy útil" {
		t.Fatalf("rating = %+v", r)
	}

	_, err = svc.Rate(context.Background(), RatingRequest{ChatbotID: cb.ID, SessionID: "s-1", Rating: 1})
	if !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("second rating: %v", err)
	}
	kept, err := repo.GetRating(context.Background(), st.DB, r.ConversationID)
	if err != nil || kept.Rating != 5 {
		t.Fatalf("original must be unchanged: %+v %v", kept, err)
	}
}

func TestRatingService_Rate_NoFeedbackStoresNull(t *testing.T) {
	st := newStore(t)
	cb := seedBot(t, st, "bot-rn", true)
	_, _, _ = st.FindOrCreateConversation(context.Background(), cb.ID, "s")
	svc := &RatingService{Chatbots: st, Store: st}

	r, err := svc.Rate(context.Background(), RatingRequest{ChatbotID: cb.ID, SessionID: "s", Rating: 3, Feedback: "   "})
	if err != nil || r.Feedback != nil {
		t.Fatalf("rating = %+v, %v", r, err)
	}
}

func TestRatingService_Rate_Errors(t *testing.T) {
	st := newStore(t)
	cb := seedBot(t, st, "bot-re", true)
	seedBot(t, st, "bot-re-off", false)
	_, _, _ = st.FindOrCreateConversation(context.Background(), cb.ID, "s")
	svc := &RatingService{Chatbots: st, Store: st}

	cases := []struct {
		name string
		req  RatingRequest
		want error
	}{
		{"zero", RatingRequest{ChatbotID: cb.ID, SessionID: "s", Rating: 0}, ErrInvalidRequest},
		{"six", RatingRequest{ChatbotID: cb.ID, SessionID: "s", Rating: 6}, ErrInvalidRequest},
		{"no session", RatingRequest{ChatbotID: cb.ID, Rating: 4}, ErrInvalidRequest},
		{"long feedback", RatingRequest{ChatbotID: cb.ID, SessionID: "s", Rating: 4, Feedback: strings.Repeat("x", MaxFeedbackRunes+1)}, ErrInvalidRequest},
		{"missing chatbot", RatingRequest{ChatbotID: "nope", SessionID: "s", Rating: 4}, ErrChatbotNotFound},
		{"inactive chatbot", RatingRequest{ChatbotID: "bot-re-off", SessionID: "s", Rating: 4}, ErrChatbotInactive},
		{"unknown session", RatingRequest{ChatbotID: cb.ID, SessionID: "other", Rating: 4}, ErrConversationNotFound},
	}
	for _, c := range cases {
		if _, err := svc.Rate(context.Background(), c.req); !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v; want %v", c.name, err, c.want)
		}
	}
}

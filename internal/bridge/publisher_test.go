package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshchat/bridge/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestPublishUserMessage(t *testing.T) {
	var captured []map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("aeg-sas-key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPublisher(discardLogger(), srv.URL, "topic-key", srv.Client())
	err := p.PublishUserMessage(context.Background(), UserMessage{
		SenderUserID: "ava",
		MessageText:  "How do I start saving?",
	})
	if err != nil {
		t.Fatalf("PublishUserMessage: %v", err)
	}

	if gotKey != "topic-key" {
		t.Fatalf("aeg-sas-key = %q", gotKey)
	}
	if len(captured) != 1 {
		t.Fatalf("expected 1 event in batch, got %d", len(captured))
	}
	ev := captured[0]
	if ev["eventType"] != events.TypeAiUserMessage {
		t.Fatalf("eventType = %v", ev["eventType"])
	}
	if ev["subject"] != "ai-chat/ava" {
		t.Fatalf("subject = %v", ev["subject"])
	}
	if ev["dataVersion"] != "1.0" {
		t.Fatalf("dataVersion = %v", ev["dataVersion"])
	}
	if ev["id"] == "" || ev["id"] == nil {
		t.Fatal("expected a generated event id")
	}
	data, ok := ev["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", ev["data"])
	}
	if data["messageText"] != "How do I start saving?" {
		t.Fatalf("messageText = %v", data["messageText"])
	}
	if _, present := data["phoneNumber"]; present {
		t.Fatal("empty phoneNumber must be omitted")
	}
}

func TestPublishUserMessageNotConfigured(t *testing.T) {
	p := NewPublisher(discardLogger(), "", "", nil)
	err := p.PublishUserMessage(context.Background(), UserMessage{SenderUserID: "ava", MessageText: "hi"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPublishUserMessageBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPublisher(discardLogger(), srv.URL, "wrong-key", srv.Client())
	if err := p.PublishUserMessage(context.Background(), UserMessage{SenderUserID: "ava", MessageText: "hi"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/meshchat/bridge/internal/bridge"
)

type fakePublisher struct {
	published []bridge.UserMessage
	err       error
}

func (f *fakePublisher) PublishUserMessage(ctx context.Context, msg bridge.UserMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeDeliverer struct {
	delivered map[string]string
	failFor   string
}

func (f *fakeDeliverer) DeliverAssistantResponse(ctx context.Context, userID, messageText string) error {
	if userID == f.failFor {
		return fmt.Errorf("delivery failed for %s", userID)
	}
	if f.delivered == nil {
		f.delivered = make(map[string]string)
	}
	f.delivered[userID] = messageText
	return nil
}

func TestPublishMessageOK(t *testing.T) {
	pub := &fakePublisher{}
	h := NewAIHandler(testLogger(), pub, &fakeDeliverer{})
	e := echo.New()

	c, rec := postJSON(e, "/ai/messages", `{"senderUserId":"ava","messageText":"hello","phoneNumber":"+15550100"}`, nil)
	if err := h.PublishMessage(c); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	if pub.published[0].PhoneNumber != "+15550100" {
		t.Fatalf("phoneNumber = %q", pub.published[0].PhoneNumber)
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["ok"] {
		t.Fatal("expected ok=true")
	}
}

func TestPublishMessageMissingFields(t *testing.T) {
	h := NewAIHandler(testLogger(), &fakePublisher{}, &fakeDeliverer{})
	e := echo.New()

	for _, body := range []string{
		`{"messageText":"hello"}`,
		`{"senderUserId":"ava"}`,
		`{}`,
	} {
		c, rec := postJSON(e, "/ai/messages", body, nil)
		if err := h.PublishMessage(c); err != nil {
			t.Fatalf("PublishMessage: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPublishMessagePublisherFailure(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("topic unreachable")}
	h := NewAIHandler(testLogger(), pub, &fakeDeliverer{})
	e := echo.New()

	c, rec := postJSON(e, "/ai/messages", `{"senderUserId":"ava","messageText":"hello"}`, nil)
	if err := h.PublishMessage(c); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRespondValidationEvent(t *testing.T) {
	h := NewAIHandler(testLogger(), &fakePublisher{}, &fakeDeliverer{})
	e := echo.New()

	body := `[{"id":"v1","eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{"validationCode":"abc"}}]`
	c, rec := postJSON(e, "/ai/respond", body, nil)
	if err := h.Respond(c); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["validationResponse"] != "abc" {
		t.Fatalf("validationResponse = %q", resp["validationResponse"])
	}
}

func TestRespondValidationEventMissingCode(t *testing.T) {
	h := NewAIHandler(testLogger(), &fakePublisher{}, &fakeDeliverer{})
	e := echo.New()

	body := `[{"id":"v1","eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{}}]`
	c, rec := postJSON(e, "/ai/respond", body, nil)
	if err := h.Respond(c); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRespondEmptyBatch(t *testing.T) {
	h := NewAIHandler(testLogger(), &fakePublisher{}, &fakeDeliverer{})
	e := echo.New()

	for _, body := range []string{`[]`, `{"not":"an array"}`} {
		c, rec := postJSON(e, "/ai/respond", body, nil)
		if err := h.Respond(c); err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRespondDeliversAssistantResponses(t *testing.T) {
	del := &fakeDeliverer{}
	h := NewAIHandler(testLogger(), &fakePublisher{}, del)
	e := echo.New()

	body := `[
		{"id":"r1","eventType":"Mesh.AiChat.AssistantResponse","data":{"receiverUserId":"ava","messageText":"Start small."}},
		{"id":"x1","eventType":"Some.Other.Event","data":{}},
		{"id":"r2","eventType":"Mesh.AiChat.AssistantResponse","data":{"receiverUserId":"marcus","messageText":"Track spending."}}
	]`
	c, rec := postJSON(e, "/ai/respond", body, nil)
	if err := h.Respond(c); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["processed"] != 2 {
		t.Fatalf("processed = %d, want 2", resp["processed"])
	}
	if del.delivered["ava"] != "Start small." || del.delivered["marcus"] != "Track spending." {
		t.Fatalf("deliveries = %v", del.delivered)
	}
}

func TestRespondReportsFailures(t *testing.T) {
	del := &fakeDeliverer{failFor: "marcus"}
	h := NewAIHandler(testLogger(), &fakePublisher{}, del)
	e := echo.New()

	body := `[
		{"id":"r1","eventType":"Mesh.AiChat.AssistantResponse","data":{"receiverUserId":"ava","messageText":"ok"}},
		{"id":"r2","eventType":"Mesh.AiChat.AssistantResponse","data":{"receiverUserId":"marcus","messageText":"boom"}},
		{"id":"r3","eventType":"Mesh.AiChat.AssistantResponse","data":{"messageText":"missing receiver"}}
	]`
	c, rec := postJSON(e, "/ai/respond", body, nil)
	if err := h.Respond(c); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["failures"].(float64) != 2 {
		t.Fatalf("failures = %v, want 2", resp["failures"])
	}
}

func TestRespondNoAssistantEvents(t *testing.T) {
	h := NewAIHandler(testLogger(), &fakePublisher{}, &fakeDeliverer{})
	e := echo.New()

	body := `[{"id":"x","eventType":"Some.Other.Event","data":{}}]`
	c, rec := postJSON(e, "/ai/respond", body, nil)
	if err := h.Respond(c); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["processed"] != 0 {
		t.Fatalf("processed = %d, want 0", resp["processed"])
	}
}

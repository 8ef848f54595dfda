// Package bridge publishes chat activity to the event topic that feeds the
// AI responder pipeline.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meshchat/bridge/internal/events"
)

const sasKeyHeader = "aeg-sas-key"

// ErrNotConfigured is returned when the topic endpoint or key is missing.
var ErrNotConfigured = errors.New("bridge: event topic not configured")

// UserMessage is the payload published for each inbound user message.
type UserMessage struct {
	SenderUserID string `json:"senderUserId"`
	MessageText  string `json:"messageText"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

type outboundEvent struct {
	ID          string      `json:"id"`
	EventType   string      `json:"eventType"`
	Subject     string      `json:"subject"`
	EventTime   time.Time   `json:"eventTime"`
	Data        UserMessage `json:"data"`
	DataVersion string      `json:"dataVersion"`
}

// Publisher posts Event Grid style envelopes to a topic endpoint using a
// shared access key.
type Publisher struct {
	endpoint   string
	key        string
	httpClient *http.Client
	log        *slog.Logger
}

func NewPublisher(log *slog.Logger, endpoint, key string, httpClient *http.Client) *Publisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{
		endpoint:   endpoint,
		key:        key,
		httpClient: httpClient,
		log:        log.With(slog.String("component", "bridge")),
	}
}

// PublishUserMessage sends one UserMessage envelope to the topic.
func (p *Publisher) PublishUserMessage(ctx context.Context, msg UserMessage) error {
	if p.endpoint == "" || p.key == "" {
		return ErrNotConfigured
	}

	batch := []outboundEvent{{
		ID:          uuid.NewString(),
		EventType:   events.TypeAiUserMessage,
		Subject:     "ai-chat/" + msg.SenderUserID,
		EventTime:   time.Now().UTC(),
		Data:        msg,
		DataVersion: "1.0",
	}}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal event batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sasKeyHeader, p.key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish user message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.log.Error("event topic rejected publish",
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", string(snippet)))
		return fmt.Errorf("publish user message: status %d", resp.StatusCode)
	}

	p.log.Debug("user message published", slog.String("subject", batch[0].Subject))
	return nil
}

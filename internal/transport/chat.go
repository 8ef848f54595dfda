package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const chatAPIVersion = "2023-11-07"

// Participant is one member added to a thread at creation time.
type Participant struct {
	UserID      string
	DisplayName string
}

// MessageContent is the nested content object the chat API returns for a
// message. Which field carries the text varies by provider version, so all
// known shapes are kept and probed by the caller.
type MessageContent struct {
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	PlainText string `json:"plainText,omitempty"`
	Text      string `json:"text,omitempty"`
}

// FirstText returns the first non-empty text field, probing the same order
// the extractor uses for inbound payloads.
func (m MessageContent) FirstText() (string, bool) {
	for _, candidate := range []string{m.Message, m.Content, m.PlainText, m.Text} {
		if candidate != "" {
			return candidate, true
		}
	}
	return "", false
}

// ChatClient talks to the transport's thread API. Every call carries a
// caller-supplied access token, so one client serves both the cached bot
// identity and per-user tokens.
type ChatClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewChatClient creates a chat client for the given endpoint.
func NewChatClient(log *slog.Logger, details ConnectionDetails, httpClient *http.Client) *ChatClient {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChatClient{
		endpoint:   details.Endpoint,
		httpClient: httpClient,
		logger:     log.With(slog.String("client", "transport_chat")),
	}
}

// CreateThread creates a chat thread with the given topic and participants
// and returns the provider thread id.
func (c *ChatClient) CreateThread(ctx context.Context, token, topic string, participants []Participant) (string, error) {
	type wireParticipant struct {
		CommunicationIdentifier struct {
			RawID string `json:"rawId"`
		} `json:"communicationIdentifier"`
		DisplayName string `json:"displayName,omitempty"`
	}
	payload := struct {
		Topic        string            `json:"topic"`
		Participants []wireParticipant `json:"participants"`
	}{Topic: topic}
	for _, p := range participants {
		var wp wireParticipant
		wp.CommunicationIdentifier.RawID = p.UserID
		wp.DisplayName = p.DisplayName
		payload.Participants = append(payload.Participants, wp)
	}

	var resp struct {
		ChatThread struct {
			ID string `json:"id"`
		} `json:"chatThread"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/threads", token, payload, &resp); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if strings.TrimSpace(resp.ChatThread.ID) == "" {
		return "", fmt.Errorf("create thread: empty thread id in response")
	}
	return resp.ChatThread.ID, nil
}

// SendMessage posts a text message to a thread and returns the message id.
func (c *ChatClient) SendMessage(ctx context.Context, token, threadID, content, senderDisplayName string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", fmt.Errorf("send message: thread id is required")
	}
	payload := map[string]any{
		"content":           content,
		"senderDisplayName": senderDisplayName,
		"type":              "text",
	}
	var resp struct {
		ID string `json:"id"`
	}
	path := "/chat/threads/" + threadID + "/messages"
	if err := c.do(ctx, http.MethodPost, path, token, payload, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// GetMessage fetches a single message by id within a thread.
func (c *ChatClient) GetMessage(ctx context.Context, token, threadID, messageID string) (MessageContent, error) {
	if strings.TrimSpace(threadID) == "" || strings.TrimSpace(messageID) == "" {
		return MessageContent{}, fmt.Errorf("get message: thread id and message id are required")
	}
	var resp struct {
		Content MessageContent `json:"content"`
	}
	path := "/chat/threads/" + threadID + "/messages/" + messageID
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return MessageContent{}, fmt.Errorf("get message: %w", err)
	}
	return resp.Content, nil
}

func (c *ChatClient) do(ctx context.Context, method, path, token string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(body)
	}
	url := c.endpoint + path + "?api-version=" + chatAPIVersion
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("chat api error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return fmt.Errorf("chat api error: status %d", resp.StatusCode)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse chat response: %w", err)
	}
	return nil
}

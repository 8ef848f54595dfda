// Package genai assembles a full assistant reply from the generation
// backend's chunked stream of data: frames.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// metadataPrefix marks reserved control frames the backend interleaves
// with content; they never carry user-visible text.
const metadataPrefix = "data:metadata"

// streamRequest is the fixed envelope the backend's stream endpoint accepts.
type streamRequest struct {
	Input  streamInput    `json:"input"`
	Config map[string]any `json:"config"`
	Kwargs map[string]any `json:"kwargs"`
}

type streamInput struct {
	Content        string         `json:"content"`
	AdditionalProp map[string]any `json:"additionalProp1"`
}

// Client consumes the generation backend's streaming endpoint. All failure
// modes are contained: a broken connection, bad status, or undecodable
// stream yields an empty reply, never an error to the caller.
type Client struct {
	streamURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a streaming client for the configured backend URL.
// The timeout bounds the whole request including the body read.
func NewClient(log *slog.Logger, streamURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		streamURL:  strings.TrimSpace(streamURL),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("client", "genai_stream")),
	}
}

// Reply streams the backend's response for the given user text and returns
// the assembled reply, or "" when the backend produced nothing or failed.
func (c *Client) Reply(ctx context.Context, userContent string) string {
	if c.streamURL == "" {
		c.logger.Error("stream url not configured")
		return ""
	}

	body, err := json.Marshal(streamRequest{
		Input: streamInput{
			Content:        userContent,
			AdditionalProp: map[string]any{},
		},
		Config: map[string]any{},
		Kwargs: map[string]any{"additionalProp1": map[string]any{}},
	})
	if err != nil {
		c.logger.Error("marshal stream request failed", slog.Any("error", err))
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("build stream request failed", slog.Any("error", err))
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("stream connect failed", slog.String("url", c.streamURL), slog.Any("error", err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("stream backend error",
			slog.String("url", c.streamURL),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", strings.TrimSpace(string(errBody))),
		)
		return ""
	}

	assembled, err := assemble(resp.Body)
	if err != nil {
		c.logger.Error("stream read failed", slog.String("url", c.streamURL), slog.Any("error", err))
		return ""
	}
	return assembled
}

// assemble decodes the newline-delimited frame stream and concatenates the
// content fragments in arrival order. The backend owns any whitespace
// between fragments; nothing is inserted here.
func assemble(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var assembled strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		if strings.HasPrefix(line, metadataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if fragment, ok := parseFrame(data); ok {
			assembled.WriteString(fragment)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(assembled.String()), nil
}

// parseFrame classifies one frame payload as content or control.
//
// JSON strings are content (unless they smuggle the metadata prefix);
// objects carrying run_id are backend bookkeeping; objects with a string
// content/text field contribute that field. Anything else is kept as
// literal text unless it is structurally an object or array, including
// object-looking text that fails to parse, so malformed control frames
// never leak into the transcript.
func parseFrame(data string) (string, bool) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, metadataPrefix) {
		return "", false
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		switch value := parsed.(type) {
		case string:
			if strings.HasPrefix(value, metadataPrefix) {
				return "", false
			}
			return value, true
		case map[string]any:
			if _, isMetadata := value["run_id"]; isMetadata {
				return "", false
			}
			if content, ok := value["content"].(string); ok {
				return content, true
			}
			if text, ok := value["text"].(string); ok {
				return text, true
			}
		}
		// Other JSON values (numbers, booleans, arrays, objects without a
		// usable text field) fall through to the structural check below.
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	return trimmed, true
}

package genai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// chunkedReader yields its chunks one Read at a time to exercise partial
// line carry-over in the scanner.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestAssembleMixedFrames(t *testing.T) {
	t.Parallel()

	stream := "data: hello\n" +
		"data:metadata\n" +
		"data: {\"content\":\" world\"}\n"
	got, err := assemble(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("unexpected assembly: %q", got)
	}
}

func TestAssembleSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	reader := &chunkedReader{chunks: []string{
		"data: par",
		"tial one\r\ndata: {\"te",
		"xt\":\" and two\"}\r\n",
	}}
	got, err := assemble(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "partial one and two" {
		t.Fatalf("unexpected assembly: %q", got)
	}
}

func TestAssembleIgnoresNonDataLines(t *testing.T) {
	t.Parallel()

	stream := "event: message\n" +
		": comment\n" +
		"data: kept\n" +
		"\n"
	got, err := assemble(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "kept" {
		t.Fatalf("unexpected assembly: %q", got)
	}
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want string
		ok   bool
	}{
		{name: "plain text", data: "hello", want: "hello", ok: true},
		{name: "double-prefixed metadata frame", data: "data:metadata run 7", want: "", ok: false},
		{name: "json string", data: `" world"`, want: " world", ok: true},
		{name: "json string smuggling metadata", data: `"data:metadata x"`, want: "", ok: false},
		{name: "run_id frame", data: `{"run_id":"x"}`, want: "", ok: false},
		{name: "object content field", data: `{"content":"a"}`, want: "a", ok: true},
		{name: "object text field", data: `{"text":"b"}`, want: "b", ok: true},
		{name: "content wins over text", data: `{"content":"a","text":"b"}`, want: "a", ok: true},
		{name: "object without text fields", data: `{"foo":"bar"}`, want: "", ok: false},
		{name: "array frame", data: `["x"]`, want: "", ok: false},
		{name: "malformed json object", data: `{"broken":`, want: "", ok: false},
		{name: "malformed json array", data: `[1,`, want: "", ok: false},
		{name: "bare number is literal content", data: "42", want: "42", ok: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseFrame(tc.data)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("parseFrame(%q) = (%q, %v), want (%q, %v)", tc.data, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestReplyHappyPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"content":"how do I save?"`) {
			t.Errorf("unexpected request body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("data: {\"run_id\":\"r1\"}\n"))
		_, _ = w.Write([]byte("data: Start\n"))
		_, _ = w.Write([]byte("data: {\"content\":\" small.\"}\n"))
	}))
	defer srv.Close()

	client := NewClient(nil, srv.URL, time.Second)
	got := client.Reply(context.Background(), "how do I save?")
	if got != "Start small." {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestReplyBadStatusReturnsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(nil, srv.URL, time.Second)
	if got := client.Reply(context.Background(), "hi"); got != "" {
		t.Fatalf("expected empty reply, got %q", got)
	}
}

func TestReplyConnectFailureReturnsEmpty(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, "http://127.0.0.1:1", 200*time.Millisecond)
	if got := client.Reply(context.Background(), "hi"); got != "" {
		t.Fatalf("expected empty reply, got %q", got)
	}
}

func TestReplyEmptyStreamReturnsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data:metadata\ndata: {\"run_id\":\"x\"}\n"))
	}))
	defer srv.Close()

	client := NewClient(nil, srv.URL, time.Second)
	if got := client.Reply(context.Background(), "hi"); got != "" {
		t.Fatalf("expected empty reply, got %q", got)
	}
}

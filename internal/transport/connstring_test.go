package transport

import "testing"

func TestParseConnectionString(t *testing.T) {
	t.Parallel()

	details, err := ParseConnectionString("endpoint=https://chat.example.com/;accesskey=c2VjcmV0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Endpoint != "https://chat.example.com" {
		t.Fatalf("unexpected endpoint: %q", details.Endpoint)
	}
	if details.AccessKey != "c2VjcmV0" {
		t.Fatalf("unexpected access key: %q", details.AccessKey)
	}
}

func TestParseConnectionStringKeyOrderAndCase(t *testing.T) {
	t.Parallel()

	details, err := ParseConnectionString("AccessKey=abc;Endpoint=https://chat.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Endpoint != "https://chat.example.com" {
		t.Fatalf("unexpected endpoint: %q", details.Endpoint)
	}
	if details.AccessKey != "abc" {
		t.Fatalf("unexpected access key: %q", details.AccessKey)
	}
}

func TestParseConnectionStringMissingEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := ParseConnectionString("accesskey=abc"); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if _, err := ParseConnectionString(""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

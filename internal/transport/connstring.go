package transport

import (
	"fmt"
	"strings"
)

// ConnectionDetails holds the parsed pieces of a transport connection string
// of the form "endpoint=https://...;accesskey=...".
type ConnectionDetails struct {
	Endpoint  string
	AccessKey string
}

// ParseConnectionString splits a provider connection string into its
// endpoint and access key. A missing endpoint is a configuration error;
// callers surface it on first use.
func ParseConnectionString(connectionString string) (ConnectionDetails, error) {
	if strings.TrimSpace(connectionString) == "" {
		return ConnectionDetails{}, fmt.Errorf("transport connection string is not configured")
	}
	var details ConnectionDetails
	for _, part := range strings.Split(connectionString, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "endpoint":
			details.Endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
		case "accesskey":
			details.AccessKey = strings.TrimSpace(value)
		}
	}
	if details.Endpoint == "" {
		return ConnectionDetails{}, fmt.Errorf("transport connection string missing endpoint")
	}
	return details, nil
}

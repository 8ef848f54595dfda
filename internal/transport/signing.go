package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// signRequest adds the HMAC-SHA256 authentication headers the identity API
// requires: a date header, a content hash, and a signature over
// "VERB\npath?query\ndate;host;contentHash".
func signRequest(req *http.Request, accessKey string, body []byte) error {
	key, err := base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return fmt.Errorf("decode access key: %w", err)
	}

	contentHash := sha256.Sum256(body)
	encodedHash := base64.StdEncoding.EncodeToString(contentHash[:])
	date := time.Now().UTC().Format(http.TimeFormat)

	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}
	stringToSign := req.Method + "\n" + pathAndQuery + "\n" + date + ";" + req.URL.Host + ";" + encodedHash

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", encodedHash)
	req.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
	return nil
}

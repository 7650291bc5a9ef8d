package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single retailer request.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a retailer response is read.
const maxBody = 4 << 20

// NewHTTPClient returns the client shared by retailer probes.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StatusError is returned for non-2xx retailer responses.
type StatusError struct {
	Retailer string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d", e.Retailer, e.Code)
}

// postJSON sends body as JSON and decodes a 2xx response into out.
func postJSON(ctx context.Context, client *http.Client, retailer, url string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return &StatusError{Retailer: retailer, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", retailer, err)
	}
	return nil
}

// truthy reports whether a raw JSON value is non-empty: a non-empty array or
// object, a non-empty string, true, or a non-zero number.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '[':
		var arr []json.RawMessage
		return json.Unmarshal(raw, &arr) == nil && len(arr) > 0
	case '{':
		var obj map[string]json.RawMessage
		return json.Unmarshal(raw, &obj) == nil && len(obj) > 0
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s != ""
	case 't':
		return string(raw) == "true"
	case 'f', 'n':
		return false
	default:
		var n float64
		return json.Unmarshal(raw, &n) == nil && n != 0
	}
}

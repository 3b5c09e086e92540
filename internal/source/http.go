package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "PriceTracker/1.0"

// NewHTTPClient returns the resty client adapters share settings with:
// a per-request timeout, three retries on transport errors, and a fixed
// User-Agent.
func NewHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
}

// DecodeJSON checks for a 200 response and unmarshals its body into v.
func DecodeJSON(resp *resty.Response, v any) error {
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w %d: %.200s", ErrBadStatus, resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// Package httpclient provides basic http functions for polling live vehicle feeds
package httpclient

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// New builds an http.Client with a request timeout suitable for repeated feed polling.
// Feed endpoints can be slow to produce large payloads, so the timeout is configurable.
func New(timeoutSeconds int) *http.Client {
	return &http.Client{
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// GetBytes pulls bytes from url using a simple GET request.
// Non-200 responses are returned as errors so callers can log and continue polling.
func GetBytes(client *http.Client, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, resp.Request.URL.Host)
	}

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

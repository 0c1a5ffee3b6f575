package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deckpilot/internal/logger"
)

// TokenFunc returns the bearer token for outgoing requests.
type TokenFunc func() (string, error)

// APIError is a non-2xx answer from the agent service.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("agent api error %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("agent api error %d: %s", e.Status, e.Message)
}

type transport struct {
	client  *http.Client
	token   TokenFunc
	timeout time.Duration
}

func (t transport) httpClient() *http.Client {
	if t.client != nil {
		return t.client
	}
	return http.DefaultClient
}

func (t transport) authorize(req *http.Request) error {
	if t.token == nil {
		return nil
	}
	token, err := t.token()
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// doJSON sends in as JSON and decodes the answer into out when out is non-nil.
func (t transport) doJSON(ctx context.Context, sessionID, method, endpoint string, in, out any) error {
	var (
		raw  []byte
		body io.Reader
		err  error
	)
	if in != nil {
		raw, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := t.authorize(req); err != nil {
		return err
	}

	route := method + " " + req.URL.Path
	logger.Wire.Outbound(sessionID, route, raw)
	resp, err := t.httpClient().Do(req)
	if err != nil {
		logger.Wire.Error(sessionID, route, err)
		return fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp)
		logger.Wire.Error(sessionID, route, apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	logger.Wire.Inbound(sessionID, "", data)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Message != "" || payload.Error != "") {
		apiErr.Type = payload.Type
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

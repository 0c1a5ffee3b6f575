package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"deckpilot/internal/protocol"
)

// LegacyClient is the request/response chat endpoint used when no session
// backend is configured.
type LegacyClient struct {
	url string
	rt  transport
}

func NewLegacy(endpoint string, token TokenFunc, httpClient *http.Client, timeout time.Duration) *LegacyClient {
	return &LegacyClient{
		url: strings.TrimSpace(endpoint),
		rt:  transport{client: httpClient, token: token, timeout: timeout},
	}
}

func (c *LegacyClient) Configured() bool {
	return c != nil && c.url != ""
}

func (c *LegacyClient) Chat(ctx context.Context, req protocol.LegacyRequest) (protocol.LegacyResponse, error) {
	var resp protocol.LegacyResponse
	if !c.Configured() {
		return resp, ErrNotConfigured
	}
	if req.ChatHistory == nil {
		req.ChatHistory = []protocol.HistoryMessage{}
	}
	if err := c.rt.doJSON(ctx, "", http.MethodPost, c.url, req, &resp); err != nil {
		return protocol.LegacyResponse{}, fmt.Errorf("legacy chat: %w", err)
	}
	return resp, nil
}

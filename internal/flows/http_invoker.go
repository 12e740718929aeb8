package flows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Envelope is the wire format of a flow call: {"data": input} in,
// {"result": output} or {"error": {...}} out.
type Envelope struct {
	Data   map[string]any `json:"data,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

type EnvelopeError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPInvoker calls flows hosted by a remote flow server.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPInvoker(baseURL string) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, flow string, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(Envelope{Data: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+flow, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flow call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("flow server %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("flow server %d: %s: %s", resp.StatusCode, env.Error.Status, env.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flow server %d: %s", resp.StatusCode, string(respBody))
	}
	if env.Result == nil {
		return nil, fmt.Errorf("%w: no result", ErrMalformedOutput)
	}
	return env.Result, nil
}

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 4 << 20

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assistant service returned %d: %s", e.StatusCode, e.Body)
}

type HTTPConfig struct {
	BaseURL string
	Path    string
	Token   string
}

// HTTPClient posts {"message": text} to the assistant endpoint.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPClient(cfg HTTPConfig, client *http.Client) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("assistant base url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	path := cfg.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + path,
		token:    cfg.Token,
		client:   client,
	}, nil
}

type chatRequest struct {
	Message string `json:"message"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, text string) (Response, error) {
	body, err := json.Marshal(chatRequest{Message: text})
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read assistant response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return ParseResponse(data), nil
}

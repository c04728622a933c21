package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (%d)", e.Status)
}

type apiErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Msg       string `json:"msg"`
	ErrorDesc string `json:"error_description"`
}

// Client talks to the hosted backend's auth and REST surfaces.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a backend client for the given base URL and anon key.
func NewClient(baseURL, anonKey string, logger *zap.Logger) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}, nil
}

// NormalizeBaseURL validates a backend base URL and strips trailing slashes.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("backend url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid backend url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("backend url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnonKey returns the publishable API key.
func (c *Client) AnonKey() string {
	return c.anonKey
}

// doJSON performs a request against the backend. bearer is the user access
// token; empty means the anon key alone authenticates the call. extra headers
// are applied after the defaults and may override them.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, bearer string, reqBody, respBody any, extra http.Header) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		req.Header[k] = vs
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Code = payload.Code
			switch {
			case payload.Message != "":
				apiErr.Message = payload.Message
			case payload.Msg != "":
				apiErr.Message = payload.Msg
			case payload.ErrorDesc != "":
				apiErr.Message = payload.ErrorDesc
			}
		}
		return apiErr
	}

	if respBody != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

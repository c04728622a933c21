package giphy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.giphy.com"

// ImageResult is one entry of a catalog response.
type ImageResult struct {
	ID         string
	Title      string
	URL        string // display-size rendition, what gets sent
	PreviewURL string // small rendition for the picker grid
}

// Client talks to the Giphy HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a catalog client. An empty baseURL uses the public
// API endpoint.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type gifEnvelope struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			FixedHeight struct {
				URL string `json:"url"`
			} `json:"fixed_height"`
			FixedHeightSmall struct {
				URL string `json:"url"`
			} `json:"fixed_height_small"`
		} `json:"images"`
	} `json:"data"`
}

// Trending returns the current trending set, G-rated.
func (c *Client) Trending(ctx context.Context, limit int) ([]ImageResult, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("rating", "g")
	return c.fetch(ctx, "/v1/gifs/trending", query)
}

// Search queries the catalog for term, G-rated.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]ImageResult, error) {
	query := url.Values{}
	query.Set("q", term)
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("rating", "g")
	return c.fetch(ctx, "/v1/gifs/search", query)
}

func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]ImageResult, error) {
	query.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog error (%d)", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var envelope gifEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	results := make([]ImageResult, 0, len(envelope.Data))
	for _, g := range envelope.Data {
		results = append(results, ImageResult{
			ID:         g.ID,
			Title:      g.Title,
			URL:        g.Images.FixedHeight.URL,
			PreviewURL: g.Images.FixedHeightSmall.URL,
		})
	}
	return results, nil
}

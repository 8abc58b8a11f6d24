package embedding

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

	"horse.fit/winnow/internal/httputil"
)

const (
	// DefaultEndpoint points to a local OpenAI-compatible embeddings endpoint.
	DefaultEndpoint = "http://127.0.0.1:8844/v1"
	// DefaultModel is the embedding model the store schema is sized for.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions matches the news.articles vector column width.
	DefaultDimensions = 1536
	// DefaultBatchSize bounds how many texts go into one HTTP request.
	DefaultBatchSize = 100
)

// Options configures a Client.
type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	Dimensions  int
	BatchSize   int
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client calls an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	endpointURL string
	model       string
	apiKey      string
	dimensions  int
	batchSize   int
	maxAttempts int
	client      *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient builds an embeddings client for the given endpoint/model.
func NewClient(opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	dimensions := opts.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	return &Client{
		endpointURL: embeddingsURL(normalizeEndpoint(opts.Endpoint)),
		model:       model,
		apiKey:      strings.TrimSpace(opts.APIKey),
		dimensions:  dimensions,
		batchSize:   batchSize,
		maxAttempts: opts.MaxAttempts,
		client:      client,
	}
}

func (c *Client) ModelName() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Client) Dimensions() int {
	if c == nil {
		return 0
	}
	return c.dimensions
}

// EmbedBatch embeds all items, issuing one HTTP request per chunk of the
// configured batch size. Results are returned in input order. Any failure
// is an error: there is no safe default vector.
func (c *Client) EmbedBatch(ctx context.Context, items []Item) ([]Result, error) {
	if c == nil {
		return nil, fmt.Errorf("embedding client is nil")
	}

	results := make([]Result, 0, len(items))
	for start := 0; start < len(items); start += c.batchSize {
		end := start + c.batchSize
		if end > len(items) {
			end = len(items)
		}

		chunk, err := c.embedChunk(ctx, items[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed items %d-%d: %w", start, end-1, err)
		}
		results = append(results, chunk...)
	}

	return results, nil
}

func (c *Client) embedChunk(ctx context.Context, items []Item) ([]Result, error) {
	inputs := make([]string, 0, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			return nil, fmt.Errorf("item %d (%s) has empty text", i, item.ID)
		}
		inputs = append(inputs, text)
	}

	body, err := json.Marshal(embeddingsRequest{
		Model: c.model,
		Input: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.client, req, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("send embeddings request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload apiErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("embeddings endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("embeddings endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(parsed.Data) != len(items) {
		return nil, fmt.Errorf("embeddings response has %d entries, want %d", len(parsed.Data), len(items))
	}

	// The response index is the correlation id; never trust array order.
	vectors := make([][]float64, len(items))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(items) {
			return nil, fmt.Errorf("embeddings response index %d out of range", entry.Index)
		}
		if vectors[entry.Index] != nil {
			return nil, fmt.Errorf("embeddings response repeats index %d", entry.Index)
		}
		if len(entry.Embedding) != c.dimensions {
			return nil, fmt.Errorf("embedding at index %d has %d dimensions, want %d", entry.Index, len(entry.Embedding), c.dimensions)
		}
		vectors[entry.Index] = entry.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("embeddings response missing index %d", i)
		}
	}

	results := make([]Result, 0, len(items))
	for i, item := range items {
		results = append(results, Result{ID: item.ID, Vector: vectors[i]})
	}
	return results, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultEndpoint
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func embeddingsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultEndpoint + "/embeddings"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/embeddings"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/embeddings"
	case path == "":
		parsed.Path = "/v1/embeddings"
	default:
		parsed.Path = path + "/v1/embeddings"
	}

	return parsed.String()
}

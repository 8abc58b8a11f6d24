package arbitration

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
	// DefaultEndpoint points to a local OpenAI-compatible chat endpoint.
	DefaultEndpoint = "http://127.0.0.1:8845/v1"
	// DefaultModel is the arbitration model.
	DefaultModel = "gpt-4o-mini"
	// DefaultBatchSize bounds how many pairs go into one chat request.
	DefaultBatchSize = 20
)

const systemPrompt = `You compare pairs of news articles and decide whether both report the same real-world event.

Two articles are duplicates when they cover the same event, announcement or development, even when wording, language or emphasis differ. They are not duplicates when they cover distinct events, follow-ups, or merely related topics.

You receive JSON: {"pairs": [{"pair_index", "new_article": {"title", "summary", "source", "date"}, "existing_article": {...}, "similarity_score"}]}.

Respond with JSON only, no prose:
{"confirmations": [{"pair_index": <int>, "is_duplicate": <bool>, "reason": "<short explanation>"}]}

Include exactly one confirmation per input pair, carrying its pair_index unchanged.`

// Options configures a Client.
type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	BatchSize   int
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client arbitrates ambiguous pairs through an OpenAI-compatible chat
// completions endpoint.
type Client struct {
	endpointURL string
	model       string
	apiKey      string
	batchSize   int
	maxAttempts int
	client      *http.Client
}

var _ Arbiter = (*Client)(nil)

// NewClient builds an arbitration client for the given endpoint/model.
func NewClient(opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
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
		endpointURL: chatCompletionsURL(normalizeEndpoint(opts.Endpoint)),
		model:       model,
		apiKey:      strings.TrimSpace(opts.APIKey),
		batchSize:   batchSize,
		maxAttempts: opts.MaxAttempts,
		client:      client,
	}
}

// ConfirmPairs submits the pairs in chunks of the configured batch size and
// collects the parsed verdicts. Verdicts for pairs the model skipped are
// simply absent; the caller applies its fail-open default for those.
func (c *Client) ConfirmPairs(ctx context.Context, pairs []Pair) ([]Verdict, error) {
	if c == nil {
		return nil, fmt.Errorf("arbitration client is nil")
	}

	verdicts := make([]Verdict, 0, len(pairs))
	for start := 0; start < len(pairs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		chunk, err := c.confirmChunk(ctx, pairs[start:end])
		if err != nil {
			return nil, fmt.Errorf("confirm pairs %d-%d: %w", start, end-1, err)
		}
		verdicts = append(verdicts, chunk...)
	}

	return verdicts, nil
}

func (c *Client) confirmChunk(ctx context.Context, pairs []Pair) ([]Verdict, error) {
	userMessage, err := json.Marshal(struct {
		Pairs []Pair `json:"pairs"`
	}{Pairs: pairs})
	if err != nil {
		return nil, fmt.Errorf("marshal pairs: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userMessage)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal arbitration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build arbitration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.client, req, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("send arbitration request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read arbitration response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload apiErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("arbitration endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("arbitration endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode arbitration response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("arbitration response missing choices")
	}

	return parseVerdicts(parsed.Choices[0].Message.Content, pairs)
}

// parseVerdicts decodes the model output strictly. Unknown or repeated
// pair_index values reject the whole chunk; missing pairs are allowed and
// left to the caller's fail-open default.
func parseVerdicts(content string, pairs []Pair) ([]Verdict, error) {
	clean := stripMarkdownFence(content)
	if clean == "" {
		return nil, fmt.Errorf("arbitration response was empty")
	}

	var payload struct {
		Confirmations []Verdict `json:"confirmations"`
	}
	decoder := json.NewDecoder(strings.NewReader(clean))
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode confirmations: %w", err)
	}

	known := make(map[int]struct{}, len(pairs))
	for _, pair := range pairs {
		known[pair.PairIndex] = struct{}{}
	}

	seen := make(map[int]struct{}, len(payload.Confirmations))
	verdicts := make([]Verdict, 0, len(payload.Confirmations))
	for _, verdict := range payload.Confirmations {
		if _, ok := known[verdict.PairIndex]; !ok {
			return nil, fmt.Errorf("confirmation references unknown pair_index %d", verdict.PairIndex)
		}
		if _, dup := seen[verdict.PairIndex]; dup {
			return nil, fmt.Errorf("confirmation repeats pair_index %d", verdict.PairIndex)
		}
		seen[verdict.PairIndex] = struct{}{}
		verdicts = append(verdicts, verdict)
	}

	return verdicts, nil
}

// stripMarkdownFence removes a surrounding ``` code fence when present.
func stripMarkdownFence(raw string) string {
	clean := strings.TrimSpace(raw)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}

	lines := strings.Split(clean, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
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

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}

	return parsed.String()
}

// Package clova is a client for the Clova Studio chat-completions API.
// It performs single calls only; rate-limit retry policy lives with the
// caller, which gets the 429 subcode as a typed error to act on.
package clova

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL  = "https://clovastudio.stream.ntruss.com/testapp/v3/chat-completions"
	defaultTokenURL = "https://clovastudio.stream.ntruss.com/v3/api-tools/chat-tokenize"
	defaultModel    = "HCX-005"

	defaultMaxTokens   = 500
	defaultTemperature = 0.8
	defaultTopP        = 0.8
)

// Client performs chat completions and token counts against the API.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message) (*ChatResult, error)
	CountTokens(ctx context.Context, messages []Message) (int, error)
}

// Message is a single conversation turn. Content is either a plain string
// or a slice of ContentPart for multimodal turns.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"imageUrl,omitempty"`
	DataURI  *DataURI  `json:"dataUri,omitempty"`
}

// ImageURL references an image by URL.
type ImageURL struct {
	URL string `json:"url"`
}

// DataURI carries inline base64 image data.
type DataURI struct {
	Data string `json:"data"`
}

// TextMessage builds a plain text turn.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part referencing a URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// DataURIPart builds an image content part carrying inline data.
func DataURIPart(dataURI string) ContentPart {
	return ContentPart{Type: "image_url", DataURI: &DataURI{Data: dataURI}}
}

// Usage reports token consumption of one completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// RateLimitInfo is the rate-limit header snapshot taken from a successful
// completion response.
type RateLimitInfo struct {
	RequestID         string `json:"x-request-id"`
	LimitRequests     int    `json:"x-ratelimit-limit-requests"`
	RemainingRequests int    `json:"x-ratelimit-remaining-requests"`
	ResetRequests     string `json:"x-ratelimit-reset-requests"`
	LimitTokens       int    `json:"x-ratelimit-limit-tokens"`
	RemainingTokens   int    `json:"x-ratelimit-remaining-tokens"`
	ResetTokens       string `json:"x-ratelimit-reset-tokens"`
}

// ChatResult is one successful completion.
type ChatResult struct {
	Content   string
	Usage     Usage
	RateLimit RateLimitInfo
	Elapsed   time.Duration
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the chat-completions base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTokenURL overrides the tokenizer base URL.
func WithTokenURL(url string) Option {
	return func(c *httpClient) {
		c.tokenURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithSampling overrides the generation parameters.
func WithSampling(maxTokens int, temperature, topP float64) Option {
	return func(c *httpClient) {
		c.maxTokens = maxTokens
		c.temperature = temperature
		c.topP = topP
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey      string
	baseURL     string
	tokenURL    string
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	http        *http.Client
}

// NewClient creates a Clova Studio API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		tokenURL:    defaultTokenURL,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		topP:        defaultTopP,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"topP"`
}

type chatEnvelope struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Usage Usage `json:"usage"`
	} `json:"result"`
}

func (c *httpClient) ChatCompletion(ctx context.Context, messages []Message) (*ChatResult, error) {
	body, err := json.Marshal(chatRequest{
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return nil, eris.Wrap(err, "clova: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "clova: create request")
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "clova: send request")
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clova: read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimitError(respBody, resp.Header)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("clova: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var env chatEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, eris.Wrap(err, "clova: unmarshal response")
	}

	return &ChatResult{
		Content:   env.Result.Message.Content,
		Usage:     env.Result.Usage,
		RateLimit: snapshotRateLimit(resp.Header),
		Elapsed:   elapsed,
	}, nil
}

// CountTokens asks the tokenizer endpoint for the prompt-token total of
// the given messages.
func (c *httpClient) CountTokens(ctx context.Context, messages []Message) (int, error) {
	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return 0, eris.Wrap(err, "clova: marshal tokenize request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return 0, eris.Wrap(err, "clova: create tokenize request")
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, eris.Wrap(err, "clova: send tokenize request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "clova: read tokenize response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("clova: tokenize status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, eris.Wrap(err, "clova: unmarshal tokenize response")
	}
	return sumCounts(parsed), nil
}

func (c *httpClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-NCP-CLOVASTUDIO-REQUEST-ID", uuid.NewString())
}

// sumCounts totals every numeric "count" value in an arbitrarily nested
// tokenizer response.
func sumCounts(obj any) int {
	total := 0
	switch v := obj.(type) {
	case map[string]any:
		switch n := v["count"].(type) {
		case float64:
			total += int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				total += i
			}
		}
		for _, child := range v {
			total += sumCounts(child)
		}
	case []any:
		for _, item := range v {
			total += sumCounts(item)
		}
	}
	return total
}

func snapshotRateLimit(h http.Header) RateLimitInfo {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(h.Get(key))
		return n
	}
	return RateLimitInfo{
		RequestID:         h.Get("x-request-id"),
		LimitRequests:     atoi("x-ratelimit-limit-requests"),
		RemainingRequests: atoi("x-ratelimit-remaining-requests"),
		ResetRequests:     h.Get("x-ratelimit-reset-requests"),
		LimitTokens:       atoi("x-ratelimit-limit-tokens"),
		RemainingTokens:   atoi("x-ratelimit-remaining-tokens"),
		ResetTokens:       h.Get("x-ratelimit-reset-tokens"),
	}
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the native size of text-embedding-3-small
	// and the width of the clusters.centroid column.
	DefaultEmbeddingDimensions = 1536
	DefaultChatModel           = openai.GPT4oMini

	DefaultMaxTokens = 400
	DefaultTimeout   = 15 * time.Second
	DefaultRate      = 5
	DefaultBurst     = 10

	// maxEmbeddingRunes keeps a single query comfortably under the
	// embedding model's 8191-token input limit.
	maxEmbeddingRunes = 24000
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	ErrEmptyCompletion = errors.New("completion returned no content")
)

// Embedder turns one piece of text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI is the subset of the go-openai client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is the single gateway to the language model: query embeddings,
// topic classification and feedback analysis all share its rate limiter.
type Client struct {
	embedder   Embedder
	chat       ChatAPI
	dimensions int
	chatModel  string
	maxTokens  int
	timeout    time.Duration
	limiter    *rate.Limiter
}

// embeddingService calls the embeddings endpoint. For text-embedding-3
// models a non-native size is requested server-side.
type embeddingService struct {
	api        *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func (e *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{Input: []string{text}, Model: e.model}
	if e.dimensions != DefaultEmbeddingDimensions && strings.HasPrefix(string(e.model), "text-embedding-3") {
		req.Dimensions = e.dimensions
	}
	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response for %s had no data", e.model)
	}
	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	MaxTokens           int
	Timeout             time.Duration
	RatePerSecond       float64
	Burst               int
}

// NewClient uses the default models and limits.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

func NewClientWithConfig(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	api := openai.NewClientWithConfig(apiCfg)

	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	embedder := &embeddingService{api: api, model: cfg.EmbeddingModel, dimensions: cfg.EmbeddingDimensions}
	return newClient(embedder, api, cfg)
}

func newClient(embedder Embedder, chat ChatAPI, cfg Config) *Client {
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	return &Client{
		embedder:   embedder,
		chat:       chat,
		dimensions: cfg.EmbeddingDimensions,
		chatModel:  cfg.ChatModel,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// Dimensions is the vector size GenerateEmbedding guarantees.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// embeddingInput collapses whitespace and caps length so the same question
// typed twice embeds identically.
func embeddingInput(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxEmbeddingRunes {
		text = string(runes[:maxEmbeddingRunes])
	}
	return text
}

// GenerateEmbedding embeds a learner query. The result always has
// Dimensions() entries.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	input := embeddingInput(text)
	if input == "" {
		return nil, ErrEmptyText
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vec, err := c.embedder.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != c.dimensions {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrWrongDimensions, c.dimensions, len(vec))
	}
	return vec, nil
}

// Complete runs a single system+user chat turn under the token budget and
// timeout and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// CompleteJSON is Complete in JSON mode, decoding the reply into out.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out any) error {
	content, err := c.complete(ctx, system, user, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to decode completion json: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.chatModel,
		MaxTokens:      c.maxTokens,
		Temperature:    0.2,
		ResponseFormat: format,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrNoAPIKey is returned when neither the request nor the server supplies a Gemini key.
var ErrNoAPIKey = errors.New("no Gemini API key provided")

// Client generates text with a model chosen by tier.
type Client interface {
	// GenerateContent returns free-form text.
	GenerateContent(ctx context.Context, system, prompt string, tier ModelTier) (string, error)
	// GenerateJSON asks for a JSON response and strips any code fence around it.
	GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (string, error)
	GetModel(tier ModelTier) string
	Close() error
}

// BlockedError means Gemini refused to answer. It is not retried.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "response blocked by the model: " + e.Reason
}

// GeminiClient implements Client for Google Gemini. One client serves one request.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, config: config}, nil
}

// GenerateContent implements Client.
func (c *GeminiClient) GenerateContent(ctx context.Context, system, prompt string, tier ModelTier) (string, error) {
	return c.generate(ctx, system, prompt, tier, "")
}

// GenerateJSON implements Client.
func (c *GeminiClient) GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, system, prompt, tier, "application/json")
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, system, prompt string, tier ModelTier, mimeType string) (string, error) {
	name := c.config.GetModel(tier)
	if name == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.config.Temperature)
	model.ResponseMIMEType = mimeType
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", name, err)
	}
	return responseText(resp)
}

// GetModel implements Client.
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close implements Client.
func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", Permanent(&BlockedError{Reason: fb.BlockReason.String()})
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", Permanent(&BlockedError{Reason: candidate.FinishReason.String()})
	}
	if candidate.Content == nil {
		return "", errors.New("no content in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text parts in response")
	}
	return sb.String(), nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"game-autopilot/src/buttons"
)

const (
	OpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel  = "openai/gpt-4o-mini"

	referer = "pokemon-automation"
	title   = "Game Autopilot"

	// cap on how much of an error body ends up in the log
	maxErrorBody = 512
)

var (
	systemPrompt = "You are an AI playing Pokemon Yellow. You must respond with ONLY ONE of these exact words with no punctuation or additional text: " + buttons.Words()
	userPrompt   = "Based on this Pokemon Yellow screenshot, which single button should be pressed? Respond with only one word."
)

var (
	ErrNoChoices   = errors.New("no choices in API response")
	ErrBadResponse = errors.New("invalid button response")
)

type Config struct {
	APIKey    string
	Model     string
	Providers []string
	// Endpoint defaults to OpenRouterURL.
	Endpoint string
	// Timeout of zero leaves the request unbounded.
	Timeout time.Duration
}

// OpenRouter API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model    string               `json:"model"`
	Messages []Message            `json:"messages"`
	Provider *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// Client asks a vision model which button to press next.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = OpenRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Model() string { return c.cfg.Model }

// Suggest never fails: anything that keeps a valid button from coming back
// is logged and replaced with buttons.Fallback.
func (c *Client) Suggest(ctx context.Context, imageURL string) buttons.Button {
	b, err := c.Query(ctx, imageURL)
	switch {
	case errors.Is(err, ErrBadResponse):
		log.Printf("Invalid button response: %v, defaulting to '%s'", err, buttons.Fallback)
		return buttons.Fallback
	case err != nil:
		log.Printf("Error in API call: %v, defaulting to '%s'", err, buttons.Fallback)
		return buttons.Fallback
	}
	return b
}

// Query sends one request and validates the reply against the vocabulary.
func (c *Client) Query(ctx context.Context, imageURL string) (buttons.Button, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("API key is required")
	}

	response, err := c.makeAPIRequest(ctx, c.buildRequest(imageURL))
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}

	content := response.Choices[0].Message.Content
	b, err := buttons.Parse(content)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadResponse, content)
	}
	return b, nil
}

func (c *Client) buildRequest(imageURL string) ChatRequest {
	return ChatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{
				Role:    "system",
				Content: []Content{{Type: "text", Text: systemPrompt}},
			},
			{
				Role: "user",
				Content: []Content{
					{Type: "text", Text: userPrompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
				},
			},
		},
		Provider: c.providerPreferences(),
	}
}

func (c *Client) providerPreferences() *ProviderPreferences {
	if len(c.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          c.cfg.Providers,
		AllowFallbacks: &allowFallbacks,
	}
}

func (c *Client) makeAPIRequest(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", referer)
	req.Header.Set("X-Title", title)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}

	return &response, nil
}

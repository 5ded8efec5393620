package captioner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
)

// Request is one caption call: a text prompt and an image data URL.
type Request struct {
	Prompt   string
	ImageURL string
}

// VisionModel turns a prompt plus image into caption text.
type VisionModel interface {
	GenerateCaption(ctx context.Context, req Request) (string, error)
}

const (
	defaultModel       = openai.GPT4o
	defaultMaxTokens   = 300
	defaultTemperature = 0.7
)

// OpenAIModel calls the chat completions API with a vision-capable model.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIModel(apiKey, model string) *OpenAIModel {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIModel{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
}

// NewOpenAIModelFromEnv reads OPENAI_API_KEY and OPENAI_MODEL.
func NewOpenAIModelFromEnv() (*OpenAIModel, error) {
	key := env.GetEnv("OPENAI_API_KEY", "")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	return NewOpenAIModel(key, env.GetEnv("OPENAI_MODEL", defaultModel)), nil
}

func (m *OpenAIModel) GenerateCaption(ctx context.Context, req Request) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    req.ImageURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Package openai runs prompt flows on any OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *goopenai.Client
	model  string
}

// NewClient builds a client for the given model. An empty baseURL uses the
// public OpenAI endpoint.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// CompleteJSON runs prompt in JSON mode. The field names are appended to the
// system prompt since JSON mode does not take a schema.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string, fields []string) (string, error) {
	if len(fields) > 0 {
		system = fmt.Sprintf("%s\nThe JSON object must contain the string fields: %s.", system, strings.Join(fields, ", "))
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response content")
	}
	return resp.Choices[0].Message.Content, nil
}

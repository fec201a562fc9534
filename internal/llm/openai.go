package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient is a Client backed by OpenAI's chat completions API.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// NewOpenAIClient builds a Client against the OpenAI API.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: openai API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system string, messages []Message, tools []ToolSpec) (Response, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, convertMessageToOpenAI(msg))
	}

	req := openai.ChatCompletionRequest{
		Model:       c.defaultModel,
		Messages:    chatMessages,
		MaxTokens:   c.maxTokens,
		Temperature: float32(defaultTemperature),
	}
	if len(tools) > 0 {
		req.Tools = convertToolsToOpenAI(tools)
	}

	completion, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("llm: openai request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, nil
	}

	choice := completion.Choices[0].Message
	resp := Response{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}
	return resp, nil
}

func convertMessageToOpenAI(msg Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			out.ToolCalls[i] = openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			}
		}
	}
	if msg.Role == "tool" {
		out.Role = openai.ChatMessageRoleTool
	}
	return out
}

func convertToolsToOpenAI(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params any
		if len(tool.ArgsSchema) > 0 {
			_ = json.Unmarshal(tool.ArgsSchema, &params)
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

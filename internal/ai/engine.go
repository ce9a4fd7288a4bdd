package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
)

// Delta is one streamed chunk of assistant output.
type Delta struct {
	Content string `json:"content"`
}

// Result is the assembled assistant turn once the stream has drained.
type Result struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Engine streams one assistant completion for a conversation history.
// onDelta fires for every chunk in arrival order; returning an error from it
// aborts the stream.
type Engine interface {
	StreamCompletion(ctx context.Context, history []model.Message, tools ToolConfig, onDelta func(Delta) error) (*Result, error)
}

type openaiEngine struct {
	client *openai.Client
	model  string
}

func NewOpenAIEngine(apiKey, modelName string) Engine {
	return &openaiEngine{
		client: openai.NewClient(apiKey),
		model:  modelName,
	}
}

// NewOpenAIEngineWithConfig is used by tests to point the client at a fake
// server.
func NewOpenAIEngineWithConfig(cfg openai.ClientConfig, modelName string) Engine {
	return &openaiEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}
}

func (e *openaiEngine) StreamCompletion(ctx context.Context, history []model.Message, tools ToolConfig, onDelta func(Delta) error) (*Result, error) {
	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: toProviderMessages(history),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if defs := tools.Definitions(); len(defs) > 0 {
		req.Tools = defs
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, apperrors.External("openai", err)
	}
	defer stream.Close()

	var (
		content strings.Builder
		result  Result
	)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.External("openai", err)
		}

		// the usage chunk arrives last with no choices
		if resp.Usage != nil {
			result.PromptTokens = resp.Usage.PromptTokens
			result.OutputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			result.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}

		content.WriteString(choice.Delta.Content)
		if onDelta != nil {
			if err := onDelta(Delta{Content: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}
	}

	result.Content = content.String()
	return &result, nil
}

func toProviderMessages(history []model.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    providerRole(m.Role),
			Content: m.Content,
		})
	}
	return msgs
}

func providerRole(role model.Role) string {
	switch role {
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case model.RoleSystem:
		return openai.ChatMessageRoleSystem
	case model.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/ai"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/service"
)

// ExitWord ends an interactive session when typed on its own line.
const ExitWord = "exit"

// Renderer receives session output. The CLI implements it with lipgloss and
// glamour; the web handler forwards deltas to the SSE broker.
type Renderer interface {
	// Prompt is called before each read of user input.
	Prompt()
	// Delta is called for each streamed chunk of assistant output.
	Delta(content string)
	// TurnDone is called once the assistant message is complete and stored.
	TurnDone(msg *model.Message, result *ai.Result)
	// TurnFailed is called when the provider fails mid-turn.
	TurnFailed(err error)
}

// Session drives one conversation: it persists user input, streams the
// assistant reply, and persists the result.
type Session struct {
	chat     *service.ChatService
	engine   ai.Engine
	renderer Renderer
	userID   string
	conv     *model.Conversation
	tools    ai.ToolConfig
}

func NewSession(chat *service.ChatService, engine ai.Engine, renderer Renderer, userID string, conv *model.Conversation, tools ai.ToolConfig) *Session {
	return &Session{
		chat:     chat,
		engine:   engine,
		renderer: renderer,
		userID:   userID,
		conv:     conv,
		tools:    tools,
	}
}

func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Turn runs one exchange: store the user message, stream the reply, store
// the assistant message, derive a title on the first exchange. A provider
// failure aborts the turn after the user message is stored; no partial
// assistant message is written.
func (s *Session) Turn(ctx context.Context, input string) (*model.Message, error) {
	if _, err := s.chat.AddMessage(ctx, s.conv.ID, model.RoleUser, input); err != nil {
		return nil, err
	}

	history, err := s.chat.Messages(ctx, s.userID, s.conv.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.StreamCompletion(ctx, history, s.tools, func(d ai.Delta) error {
		if s.renderer != nil {
			s.renderer.Delta(d.Content)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg, err := s.chat.AddMessage(ctx, s.conv.ID, model.RoleAssistant, result.Content)
	if err != nil {
		return nil, err
	}

	if err := s.chat.EnsureTitle(ctx, s.conv, input); err != nil {
		log.Warn().Err(err).Str("conversationId", s.conv.ID).Msg("failed to set conversation title")
	}

	if s.renderer != nil {
		s.renderer.TurnDone(msg, result)
	}
	return msg, nil
}

// Run reads lines from r until EOF, the exit word, or context cancellation.
// A failed turn is reported and the loop continues.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.renderer != nil {
			s.renderer.Prompt()
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == ExitWord {
			return nil
		}

		if _, err := s.Turn(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if s.renderer != nil {
				s.renderer.TurnFailed(err)
			}
			log.Error().Err(err).Str("conversationId", s.conv.ID).Msg("chat turn failed")
		}
	}
}

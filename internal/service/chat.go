package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/config"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/repository"
)

// ChatService owns conversations and their messages. Every lookup is gated
// on the owning user.
type ChatService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
}

func NewChatService(conversationRepo repository.ConversationRepository, messageRepo repository.MessageRepository) *ChatService {
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
	}
}

// GetOrCreate loads the conversation with its messages oldest first. An
// empty, unknown, or unowned conversationID falls back to starting a fresh
// conversation with a default title.
func (s *ChatService) GetOrCreate(ctx context.Context, userID, conversationID string, mode model.ConversationMode) (*model.Conversation, error) {
	if conversationID != "" {
		conv, err := s.conversationRepo.FindByIDAndUserID(ctx, conversationID, userID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if conv != nil {
			msgs, err := s.messageRepo.FindByConversationID(ctx, conv.ID)
			if err != nil {
				return nil, apperrors.Database(err)
			}
			conv.Messages = msgs
			return conv, nil
		}
	}

	conv, err := s.conversationRepo.Create(ctx, model.CreateConversationParams{
		UserID: userID,
		Mode:   mode,
		Title:  DefaultTitle(mode),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	log.Debug().Str("conversationId", conv.ID).Str("userId", userID).Msg("conversation created")
	return conv, nil
}

// Get loads an existing conversation with its messages oldest first. Unknown
// or unowned ids are NotFound; nothing is created.
func (s *ChatService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversationRepo.FindByIDAndUserID(ctx, conversationID, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	msgs, err := s.messageRepo.FindByConversationID(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	conv.Messages = msgs
	return conv, nil
}

// AddMessage appends a message to the conversation and bumps its updated_at.
// Non-string content is serialized to JSON before it hits the store.
func (s *ChatService) AddMessage(ctx context.Context, conversationID string, role model.Role, content any) (*model.Message, error) {
	body, err := encodeContent(content)
	if err != nil {
		return nil, apperrors.InvalidInput("content", err.Error())
	}

	msg, err := s.messageRepo.Create(ctx, model.CreateMessageParams{
		ConversationID: conversationID,
		Role:           role,
		Content:        body,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := s.conversationRepo.Touch(ctx, conversationID); err != nil {
		return nil, apperrors.Database(err)
	}
	return msg, nil
}

// Messages returns the conversation's messages oldest first.
func (s *ChatService) Messages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	conv, err := s.conversationRepo.FindByIDAndUserID(ctx, conversationID, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	msgs, err := s.messageRepo.FindByConversationID(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return msgs, nil
}

// List returns the user's conversations, most recently updated first.
func (s *ChatService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	convs, err := s.conversationRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return convs, nil
}

// UpdateTitle overwrites the conversation title unconditionally. Callers
// that only want to title a fresh conversation use EnsureTitle.
func (s *ChatService) UpdateTitle(ctx context.Context, conversationID, title string) error {
	if err := s.conversationRepo.UpdateTitle(ctx, conversationID, title); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// EnsureTitle replaces the default title with one derived from firstMessage
// once the conversation holds exactly one user message. Later exchanges
// leave the title alone.
func (s *ChatService) EnsureTitle(ctx context.Context, conv *model.Conversation, firstMessage string) error {
	count, err := s.messageRepo.CountByRole(ctx, conv.ID, model.RoleUser)
	if err != nil {
		return apperrors.Database(err)
	}
	if count != 1 {
		return nil
	}

	title := DeriveTitle(firstMessage)
	if title == "" {
		return nil
	}

	if err := s.UpdateTitle(ctx, conv.ID, title); err != nil {
		return err
	}
	conv.Title = title
	return nil
}

// Delete removes the conversation and, via cascade, its messages. Deleting a
// conversation that does not exist or belongs to someone else is NotFound.
func (s *ChatService) Delete(ctx context.Context, userID, conversationID string) error {
	affected, err := s.conversationRepo.DeleteByIDAndUserID(ctx, conversationID, userID)
	if err != nil {
		return apperrors.Database(err)
	}
	if affected == 0 {
		return apperrors.NotFound("Conversation")
	}

	log.Info().Str("conversationId", conversationID).Str("userId", userID).Msg("conversation deleted")
	return nil
}

// DefaultTitle is the title a conversation carries until the first exchange
// names it.
func DefaultTitle(mode model.ConversationMode) string {
	return fmt.Sprintf("New %s conversation", mode)
}

// DeriveTitle builds a conversation title from the first user message,
// cut at TitleMaxLen with an ellipsis.
func DeriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) > config.TitleMaxLen {
		return string(runes[:config.TitleMaxLen]) + "..."
	}
	return message
}

func encodeContent(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal message content: %w", err)
		}
		return string(data), nil
	}
}

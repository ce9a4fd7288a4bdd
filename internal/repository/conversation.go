package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbital-labs/orbital/internal/model"
)

type ConversationRepository interface {
	FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Conversation, error)
	FindByUserID(ctx context.Context, userID string) ([]model.Conversation, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
	Touch(ctx context.Context, id string) error
	// DeleteByIDAndUserID removes the conversation only when both id and
	// owner match; returns the number of rows deleted.
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ConversationRepository
}

type conversationRepo struct {
	db sqlxDB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) WithTx(tx *sqlx.Tx) ConversationRepository {
	return &conversationRepo{db: tx}
}

func (r *conversationRepo) FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE id = ? AND user_id = ?
	`, id, userID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByUserID(ctx context.Context, userID string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`, userID)
	return convs, err
}

func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := model.Conversation{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		Mode:      params.Mode,
		Title:     params.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, mode, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Mode, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC(), id)
	return err
}

func (r *conversationRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

func (r *conversationRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital-labs/orbital/internal/model"
)

func TestMessageRepository_OrderedByCreation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "msg@example.com")
	convRepo := NewConversationRepository(db.DB)
	msgRepo := NewMessageRepository(db.DB)
	ctx := context.Background()

	conv, err := convRepo.Create(ctx, model.CreateConversationParams{UserID: user.ID, Mode: model.ModeChat, Title: "t"})
	require.NoError(t, err)

	contents := []string{"one", "two", "three"}
	for _, c := range contents {
		_, err := msgRepo.Create(ctx, model.CreateMessageParams{
			ConversationID: conv.ID,
			Role:           model.RoleUser,
			Content:        c,
		})
		require.NoError(t, err)
	}

	msgs, err := msgRepo.FindByConversationID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, c := range contents {
		assert.Equal(t, c, msgs[i].Content)
	}
}

func TestMessageRepository_CountByRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "count@example.com")
	convRepo := NewConversationRepository(db.DB)
	msgRepo := NewMessageRepository(db.DB)
	ctx := context.Background()

	conv, err := convRepo.Create(ctx, model.CreateConversationParams{UserID: user.ID, Mode: model.ModeChat, Title: "t"})
	require.NoError(t, err)

	_, err = msgRepo.Create(ctx, model.CreateMessageParams{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)
	_, err = msgRepo.Create(ctx, model.CreateMessageParams{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "hello"})
	require.NoError(t, err)

	userCount, err := msgRepo.CountByRole(ctx, conv.ID, model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 1, userCount)

	toolCount, err := msgRepo.CountByRole(ctx, conv.ID, model.RoleTool)
	require.NoError(t, err)
	assert.Zero(t, toolCount)
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital-labs/orbital/internal/model"
)

func TestConversationRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "alice@example.com")
	repo := NewConversationRepository(db.DB)
	ctx := context.Background()

	conv, err := repo.Create(ctx, model.CreateConversationParams{
		UserID: user.ID,
		Mode:   model.ModeChat,
		Title:  "New chat conversation",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, user.ID, conv.UserID)
	assert.Equal(t, model.ModeChat, conv.Mode)
	assert.Equal(t, "New chat conversation", conv.Title)
}

func TestConversationRepository_FindByIDAndUserID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	repo := NewConversationRepository(db.DB)
	ctx := context.Background()

	conv, err := repo.Create(ctx, model.CreateConversationParams{
		UserID: owner.ID,
		Mode:   model.ModeChat,
		Title:  "owned",
	})
	require.NoError(t, err)

	t.Run("owner finds it", func(t *testing.T) {
		found, err := repo.FindByIDAndUserID(ctx, conv.ID, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, conv.ID, found.ID)
	})

	t.Run("other user gets nil", func(t *testing.T) {
		found, err := repo.FindByIDAndUserID(ctx, conv.ID, other.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("unknown id gets nil", func(t *testing.T) {
		found, err := repo.FindByIDAndUserID(ctx, "nope", owner.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestConversationRepository_FindByUserID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "list@example.com")
	repo := NewConversationRepository(db.DB)
	ctx := context.Background()

	first, err := repo.Create(ctx, model.CreateConversationParams{UserID: user.ID, Mode: model.ModeChat, Title: "first"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond) // Ensure different timestamps

	second, err := repo.Create(ctx, model.CreateConversationParams{UserID: user.ID, Mode: model.ModeTool, Title: "second"})
	require.NoError(t, err)

	convs, err := repo.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)
	assert.Equal(t, first.ID, convs[1].ID)
}

func TestConversationRepository_UpdateTitle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	user := createTestUser(t, db, "title@example.com")
	repo := NewConversationRepository(db.DB)
	ctx := context.Background()

	conv, err := repo.Create(ctx, model.CreateConversationParams{UserID: user.ID, Mode: model.ModeChat, Title: "before"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateTitle(ctx, conv.ID, "after"))

	found, err := repo.FindByIDAndUserID(ctx, conv.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", found.Title)
	assert.True(t, found.UpdatedAt.After(conv.UpdatedAt) || found.UpdatedAt.Equal(conv.UpdatedAt))
}

func TestConversationRepository_DeleteByIDAndUserID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	owner := createTestUser(t, db, "del-owner@example.com")
	other := createTestUser(t, db, "del-other@example.com")
	convRepo := NewConversationRepository(db.DB)
	msgRepo := NewMessageRepository(db.DB)
	ctx := context.Background()

	conv, err := convRepo.Create(ctx, model.CreateConversationParams{UserID: owner.ID, Mode: model.ModeChat, Title: "doomed"})
	require.NoError(t, err)

	_, err = msgRepo.Create(ctx, model.CreateMessageParams{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)

	t.Run("wrong owner deletes nothing", func(t *testing.T) {
		n, err := convRepo.DeleteByIDAndUserID(ctx, conv.ID, other.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		found, err := convRepo.FindByIDAndUserID(ctx, conv.ID, owner.ID)
		require.NoError(t, err)
		assert.NotNil(t, found)

		msgs, err := msgRepo.FindByConversationID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("owner delete cascades to messages", func(t *testing.T) {
		n, err := convRepo.DeleteByIDAndUserID(ctx, conv.ID, owner.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		msgs, err := msgRepo.FindByConversationID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

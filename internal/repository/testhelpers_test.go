package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbital-labs/orbital/internal/database"
	"github.com/orbital-labs/orbital/internal/model"
)

// setupTestDB opens a named in-memory sqlite database. Shared cache plus a
// single pooled connection keeps the database alive for the whole test.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := database.Connect(dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db
}

func createTestUser(t *testing.T, db *database.DB, email string) *model.User {
	t.Helper()

	repo := NewUserRepository(db.DB)
	user, err := repo.Create(context.Background(), model.CreateUserParams{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhash",
	})
	require.NoError(t, err)
	return user
}

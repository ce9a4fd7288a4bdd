package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbital-labs/orbital/internal/database"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/repository"
)

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

func newTestAuthService(t *testing.T) (*AuthService, *database.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewAuthService(
		repository.NewUserRepository(db.DB),
		repository.NewSessionRepository(db.DB),
	), db
}

func newTestChatService(t *testing.T) (*ChatService, *database.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewChatService(
		repository.NewConversationRepository(db.DB),
		repository.NewMessageRepository(db.DB),
	), db
}

func createUser(t *testing.T, db *database.DB) string {
	t.Helper()
	return createUserEmail(t, db, "chat@example.com")
}

func createUserEmail(t *testing.T, db *database.DB, email string) string {
	t.Helper()

	user, err := repository.NewUserRepository(db.DB).Create(context.Background(), model.CreateUserParams{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhash",
	})
	require.NoError(t, err)
	return user.ID
}

// memGrantStore is an in-memory GrantStore. TTLs are ignored; tests drive
// expiry through the grant's ExpiresAt.
type memGrantStore struct {
	mu          sync.Mutex
	byDevice    map[string]*model.DeviceGrant
	byUserCode  map[string]string
	saveErr     error
	deleteCalls int
}

func newMemGrantStore() *memGrantStore {
	return &memGrantStore{
		byDevice:   make(map[string]*model.DeviceGrant),
		byUserCode: make(map[string]string),
	}
}

func (m *memGrantStore) Save(_ context.Context, grant *model.DeviceGrant, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	g := *grant
	m.byDevice[grant.DeviceCode] = &g
	m.byUserCode[grant.UserCode] = grant.DeviceCode
	return nil
}

func (m *memGrantStore) FindByDeviceCode(_ context.Context, deviceCode string) (*model.DeviceGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.byDevice[deviceCode]
	if !ok {
		return nil, nil
	}
	g := *grant
	return &g, nil
}

func (m *memGrantStore) FindByUserCode(ctx context.Context, userCode string) (*model.DeviceGrant, error) {
	m.mu.Lock()
	deviceCode, ok := m.byUserCode[userCode]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.FindByDeviceCode(ctx, deviceCode)
}

func (m *memGrantStore) Update(_ context.Context, grant *model.DeviceGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := *grant
	m.byDevice[grant.DeviceCode] = &g
	return nil
}

func (m *memGrantStore) Delete(_ context.Context, grant *model.DeviceGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.byDevice, grant.DeviceCode)
	delete(m.byUserCode, grant.UserCode)
	return nil
}

// allowAllLimiter never throttles.
type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

// denyLimiter always throttles.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

package mocks

import (
	"context"
	"time"

	"character-sync/internal/models"
	"character-sync/internal/upstream"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of upstream.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) LoginWithUsername(ctx context.Context, username, password string) (*models.ExternalAuth, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalAuth), args.Error(1)
}

func (m *MockProvider) LoginWithEmail(ctx context.Context, email, password string) (*models.ExternalAuth, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalAuth), args.Error(1)
}

func (m *MockProvider) LoginAnonymous(ctx context.Context) (*models.ExternalAuth, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalAuth), args.Error(1)
}

func (m *MockProvider) GetUserData(ctx context.Context, sessionToken string, req upstream.DataRequest) (*upstream.DataBag, error) {
	args := m.Called(ctx, sessionToken, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upstream.DataBag), args.Error(1)
}

// MockRepository is a mock implementation of database.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) GetCredentials(ctx context.Context, userID string) (*models.ExternalCredentials, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalCredentials), args.Error(1)
}

func (m *MockRepository) SaveCredentials(ctx context.Context, creds *models.ExternalCredentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *MockRepository) UpdateSessionToken(ctx context.Context, userID, sessionToken string, connectedAt time.Time) error {
	args := m.Called(ctx, userID, sessionToken, connectedAt)
	return args.Error(0)
}

func (m *MockRepository) GetCharacterByID(ctx context.Context, id string) (*models.Character, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

func (m *MockRepository) GetCharacterByExternalID(ctx context.Context, externalID string) (*models.Character, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

func (m *MockRepository) UpsertCharacter(ctx context.Context, character *models.Character) (*models.Character, error) {
	args := m.Called(ctx, character)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

func (m *MockRepository) UpdateCharacterSessionToken(ctx context.Context, id, sessionToken string) error {
	args := m.Called(ctx, id, sessionToken)
	return args.Error(0)
}

// MockCache is a mock implementation of cache.Store
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) GetListing(ctx context.Context, sessionToken string) (*models.CharacterListing, error) {
	args := m.Called(ctx, sessionToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CharacterListing), args.Error(1)
}

func (m *MockCache) SetListing(ctx context.Context, sessionToken string, listing *models.CharacterListing, ttl time.Duration) error {
	args := m.Called(ctx, sessionToken, listing, ttl)
	return args.Error(0)
}

func (m *MockCache) InvalidateListing(ctx context.Context, sessionToken string) error {
	args := m.Called(ctx, sessionToken)
	return args.Error(0)
}

func (m *MockCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) ReleaseLock(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

// MockCharacterService is a mock implementation of handlers.CharacterService
type MockCharacterService struct {
	mock.Mock
}

func (m *MockCharacterService) Login(ctx context.Context, identifier, password string) (*models.ExternalAuth, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalAuth), args.Error(1)
}

func (m *MockCharacterService) LinkAccount(ctx context.Context, userID, identifier, password string) (*models.ExternalAuth, error) {
	args := m.Called(ctx, userID, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExternalAuth), args.Error(1)
}

func (m *MockCharacterService) ListCharacters(ctx context.Context, sessionToken string) (*models.CharacterListing, error) {
	args := m.Called(ctx, sessionToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CharacterListing), args.Error(1)
}

func (m *MockCharacterService) ImportCharacter(ctx context.Context, localAccountID, sessionToken, externalID string) (*models.Character, error) {
	args := m.Called(ctx, localAccountID, sessionToken, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

func (m *MockCharacterService) SyncCharacter(ctx context.Context, record *models.Character) (*models.Character, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Character), args.Error(1)
}

func (m *MockCharacterService) ImportFromShareKey(ctx context.Context, shareKey string) (*models.DecodedCharacter, error) {
	args := m.Called(ctx, shareKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecodedCharacter), args.Error(1)
}

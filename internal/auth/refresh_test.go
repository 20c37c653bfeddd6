package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"character-sync/internal/auth"
	"character-sync/internal/mocks"
	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryCredentials is a stateful credential store.
type memoryCredentials struct {
	mu    sync.Mutex
	rows  map[string]models.ExternalCredentials
	reads int

	// onRead, when set, runs before each read with the read count.
	onRead func(n int, row *models.ExternalCredentials)
	GetErr error
}

func newMemoryCredentials(rows ...models.ExternalCredentials) *memoryCredentials {
	s := &memoryCredentials{rows: make(map[string]models.ExternalCredentials)}
	for _, r := range rows {
		s.rows[r.UserID] = r
	}
	return s
}

func (s *memoryCredentials) GetCredentials(_ context.Context, userID string) (*models.ExternalCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.reads++
	row, ok := s.rows[userID]
	if !ok {
		return nil, nil
	}
	if s.onRead != nil {
		s.onRead(s.reads, &row)
		s.rows[userID] = row
	}
	return &row, nil
}

func (s *memoryCredentials) UpdateSessionToken(_ context.Context, userID, sessionToken string, connectedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[userID]
	row.SessionToken = sessionToken
	row.ConnectedAt = &connectedAt
	s.rows[userID] = row
	return nil
}

func (s *memoryCredentials) token(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[userID].SessionToken
}

func storedRow(t *testing.T, m *auth.Manager, token string) models.ExternalCredentials {
	t.Helper()
	sealed, err := m.Seal("hunter2")
	require.NoError(t, err)
	return models.ExternalCredentials{
		UserID:            "user-1",
		ExternalUsername:  "valeros",
		EncryptedPassword: sealed,
		SessionToken:      token,
	}
}

func TestRefresher_ConcurrentCallersShareOneLogin(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		After(100*time.Millisecond).
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil)

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "stale"))
	refresher := auth.NewRefresher(manager, store, auth.NewRefreshGroup(), nil, time.Second, zap.NewNop())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := refresher.Refresh(context.Background(), "user-1", "stale")
			errs[i] = err
			if got != nil {
				results[i] = got.SessionToken
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", results[i])
	}
	provider.AssertNumberOfCalls(t, "LoginWithUsername", 1)
	assert.Equal(t, "fresh", store.token("user-1"))
}

func TestRefresher_ReusesNewerStoredToken(t *testing.T) {
	provider := &mocks.MockProvider{}
	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "already-refreshed"))
	refresher := auth.NewRefresher(manager, store, nil, nil, time.Second, zap.NewNop())

	got, err := refresher.Refresh(context.Background(), "user-1", "stale")

	require.NoError(t, err)
	assert.Equal(t, "already-refreshed", got.SessionToken)
	assert.True(t, got.Reused)
	provider.AssertNotCalled(t, "LoginWithUsername", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresher_NoStoredCredentials(t *testing.T) {
	manager := auth.NewManager(&mocks.MockProvider{}, newVault(t), zap.NewNop())
	refresher := auth.NewRefresher(manager, newMemoryCredentials(), nil, nil, time.Second, zap.NewNop())

	_, err := refresher.Refresh(context.Background(), "user-1", "stale")
	assert.True(t, errors.Is(err, svcerrors.ErrNoStoredCredentials))
}

func TestRefresher_HoldsAndReleasesLock(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil).Once()

	locker := &mocks.MockCache{}
	locker.On("AcquireLock", mock.Anything, "refresh_lock:user-1", 5*time.Second).Return("lock-1", true, nil).Once()
	locker.On("ReleaseLock", mock.Anything, "refresh_lock:user-1", "lock-1").Return(nil).Once()

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "stale"))
	refresher := auth.NewRefresher(manager, store, nil, locker, 5*time.Second, zap.NewNop())

	got, err := refresher.Refresh(context.Background(), "user-1", "stale")

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.SessionToken)
	locker.AssertExpectations(t)
}

func TestRefresher_WaitsForPeerInstance(t *testing.T) {
	provider := &mocks.MockProvider{}
	locker := &mocks.MockCache{}
	locker.On("AcquireLock", mock.Anything, "refresh_lock:user-1", 5*time.Second).Return("", false, nil).Once()

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "stale"))
	store.onRead = func(n int, row *models.ExternalCredentials) {
		if n >= 3 {
			row.SessionToken = "peer-token"
		}
	}
	refresher := auth.NewRefresher(manager, store, nil, locker, 5*time.Second, zap.NewNop())

	got, err := refresher.Refresh(context.Background(), "user-1", "stale")

	require.NoError(t, err)
	assert.Equal(t, "peer-token", got.SessionToken)
	provider.AssertNotCalled(t, "LoginWithUsername", mock.Anything, mock.Anything, mock.Anything)
	locker.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresher_LockErrorFallsBackToLogin(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil).Once()
	locker := &mocks.MockCache{}
	locker.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything).Return("", false, errors.New("redis down")).Once()

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "stale"))
	refresher := auth.NewRefresher(manager, store, nil, locker, time.Second, zap.NewNop())

	got, err := refresher.Refresh(context.Background(), "user-1", "stale")

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.SessionToken)
}

func TestRefresher_LogsInWhenStoredTokenWasTried(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil).Once()

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "linked-ticket"))
	refresher := auth.NewRefresher(manager, store, nil, nil, time.Second, zap.NewNop())

	got, err := refresher.Refresh(context.Background(), "user-1", "header-ticket", "linked-ticket")

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.SessionToken)
	assert.False(t, got.Reused)
	assert.Equal(t, "fresh", store.token("user-1"))
	provider.AssertExpectations(t)
}

func TestRefresher_CancelledCallerDoesNotFailOthers(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		After(200*time.Millisecond).
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil).Once()

	manager := auth.NewManager(provider, newVault(t), zap.NewNop())
	store := newMemoryCredentials(storedRow(t, manager, "stale"))
	refresher := auth.NewRefresher(manager, store, auth.NewRefreshGroup(), nil, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := refresher.Refresh(ctx, "user-1", "stale")
		firstErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	secondDone := make(chan *auth.Refreshed, 1)
	go func() {
		got, err := refresher.Refresh(context.Background(), "user-1", "stale")
		assert.NoError(t, err)
		secondDone <- got
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.True(t, errors.Is(<-firstErr, svcerrors.ErrUpstreamUnavailable))
	got := <-secondDone
	require.NotNil(t, got)
	assert.Equal(t, "fresh", got.SessionToken)
	assert.Equal(t, "fresh", store.token("user-1"))
	provider.AssertNumberOfCalls(t, "LoginWithUsername", 1)
}

func TestRefreshGroup_PropagatesError(t *testing.T) {
	g := auth.NewRefreshGroup()
	_, _, err := g.Do(context.Background(), "a", func() (*auth.Refreshed, error) {
		return nil, svcerrors.ErrSessionExpired
	})
	assert.True(t, errors.Is(err, svcerrors.ErrSessionExpired))
}

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"character-sync/internal/auth"
	"character-sync/internal/mocks"
	"character-sync/internal/models"
	"character-sync/internal/upstream"
	"character-sync/internal/vault"
	svcerrors "character-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return v
}

func accountNotFound() error {
	return &upstream.APIError{HTTPStatus: 400, Code: upstream.CodeAccountNotFound, Message: "User not found"}
}

func TestLogin_UsernameSucceeds(t *testing.T) {
	provider := &mocks.MockProvider{}
	want := &models.ExternalAuth{ExternalAccountID: "A1", SessionToken: "tok"}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "pw").Return(want, nil).Once()

	m := auth.NewManager(provider, newVault(t), zap.NewNop())
	got, err := m.Login(context.Background(), "valeros", "pw")

	require.NoError(t, err)
	assert.Equal(t, want, got)
	provider.AssertNotCalled(t, "LoginWithEmail", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertExpectations(t)
}

func TestLogin_AccountNotFoundRetriesEmailExactlyOnce(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "seelah@example.com", "pw").Return(nil, accountNotFound()).Once()
	provider.On("LoginWithEmail", mock.Anything, "seelah@example.com", "pw").
		Return(&models.ExternalAuth{SessionToken: "tok"}, nil).Once()

	m := auth.NewManager(provider, newVault(t), zap.NewNop())
	got, err := m.Login(context.Background(), "seelah@example.com", "pw")

	require.NoError(t, err)
	assert.Equal(t, "tok", got.SessionToken)
	provider.AssertNumberOfCalls(t, "LoginWithUsername", 1)
	provider.AssertNumberOfCalls(t, "LoginWithEmail", 1)
}

func TestLogin_EmailFailureIsAuthenticationError(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "ezren", "pw").Return(nil, accountNotFound()).Once()
	provider.On("LoginWithEmail", mock.Anything, "ezren", "pw").Return(nil, &upstream.APIError{
		HTTPStatus: 400, Code: "InvalidEmailAddress", Message: "Email address is not valid",
	}).Once()

	m := auth.NewManager(provider, newVault(t), zap.NewNop())
	_, err := m.Login(context.Background(), "ezren", "pw")

	require.Error(t, err)
	assert.True(t, errors.Is(err, svcerrors.ErrAuthentication))
	assert.Equal(t, "Email address is not valid", svcerrors.As(err).Reason)
	provider.AssertNumberOfCalls(t, "LoginWithEmail", 1)
}

func TestLogin_OtherRejectionDoesNotRetry(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "kyra", "bad").Return(nil, &upstream.APIError{
		HTTPStatus: 400, Code: "InvalidUsernameOrPassword", Message: "Invalid username or password",
	}).Once()

	m := auth.NewManager(provider, newVault(t), zap.NewNop())
	_, err := m.Login(context.Background(), "kyra", "bad")

	assert.True(t, errors.Is(err, svcerrors.ErrAuthentication))
	assert.Contains(t, svcerrors.As(err).Description(), "Invalid username or password")
	provider.AssertNotCalled(t, "LoginWithEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_UpstreamUnavailablePropagates(t *testing.T) {
	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "kyra", "pw").
		Return(nil, svcerrors.Wrap(errors.New("dial tcp: refused"), svcerrors.ErrUpstreamUnavailable)).Once()

	m := auth.NewManager(provider, newVault(t), zap.NewNop())
	_, err := m.Login(context.Background(), "kyra", "pw")

	assert.True(t, errors.Is(err, svcerrors.ErrUpstreamUnavailable))
	assert.False(t, errors.Is(err, svcerrors.ErrAuthentication))
}

func TestLogin_EmptyCredentials(t *testing.T) {
	provider := &mocks.MockProvider{}
	m := auth.NewManager(provider, newVault(t), zap.NewNop())

	_, err := m.Login(context.Background(), "  ", "pw")
	assert.True(t, errors.Is(err, svcerrors.ErrAuthentication))
	provider.AssertExpectations(t)
}

func TestRefresh_DecryptsAndLogsIn(t *testing.T) {
	v := newVault(t)
	sealed, err := v.EncryptString("hunter2")
	require.NoError(t, err)

	provider := &mocks.MockProvider{}
	provider.On("LoginWithUsername", mock.Anything, "valeros", "hunter2").
		Return(&models.ExternalAuth{SessionToken: "fresh"}, nil).Once()

	m := auth.NewManager(provider, v, zap.NewNop())
	got, err := m.Refresh(context.Background(), "valeros", sealed)

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.SessionToken)
}

func TestRefresh_MissingCredentials(t *testing.T) {
	m := auth.NewManager(&mocks.MockProvider{}, newVault(t), zap.NewNop())

	_, err := m.Refresh(context.Background(), "", "aa:bb")
	assert.True(t, errors.Is(err, svcerrors.ErrNoStoredCredentials))

	_, err = m.Refresh(context.Background(), "valeros", "")
	assert.True(t, errors.Is(err, svcerrors.ErrNoStoredCredentials))
}

func TestRefresh_CorruptSecret(t *testing.T) {
	m := auth.NewManager(&mocks.MockProvider{}, newVault(t), zap.NewNop())

	_, err := m.Refresh(context.Background(), "valeros", "not-a-secret")
	assert.True(t, errors.Is(err, svcerrors.ErrCorruptSecret))
}

func TestSeal_RoundTrip(t *testing.T) {
	v := newVault(t)
	m := auth.NewManager(&mocks.MockProvider{}, v, zap.NewNop())

	sealed, err := m.Seal("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := v.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

package auth

import (
	"context"
	"errors"
	"strings"

	"character-sync/internal/models"
	"character-sync/internal/upstream"
	"character-sync/internal/vault"
	svcerrors "character-sync/pkg/errors"

	"go.uber.org/zap"
)

// Manager opens provider sessions from user credentials.
type Manager struct {
	provider upstream.Provider
	vault    *vault.Vault
	logger   *zap.Logger
}

// NewManager creates a new session manager
func NewManager(provider upstream.Provider, v *vault.Vault, logger *zap.Logger) *Manager {
	return &Manager{
		provider: provider,
		vault:    v,
		logger:   logger,
	}
}

// Login tries identifier as a provider username first. Only when the provider
// reports AccountNotFound is it retried, once, as an e-mail address. Every
// other provider rejection becomes ErrAuthentication carrying the provider's
// reason. Transport failures keep their ErrUpstreamUnavailable classification.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*models.ExternalAuth, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, svcerrors.WithReason(svcerrors.ErrAuthentication, "identifier and password are required")
	}

	auth, err := m.provider.LoginWithUsername(ctx, identifier, password)
	if err == nil {
		return auth, nil
	}
	if !upstream.IsAccountNotFound(err) {
		return nil, authenticationError(err)
	}

	m.logger.Debug("Username not found, retrying as e-mail")
	auth, err = m.provider.LoginWithEmail(ctx, identifier, password)
	if err != nil {
		return nil, authenticationError(err)
	}
	return auth, nil
}

// Refresh decrypts the stored password and logs in again.
func (m *Manager) Refresh(ctx context.Context, username, encryptedPassword string) (*models.ExternalAuth, error) {
	if username == "" || encryptedPassword == "" {
		return nil, svcerrors.ErrNoStoredCredentials
	}
	password, err := m.vault.DecryptString(encryptedPassword)
	if err != nil {
		m.logger.Error("Failed to read stored credentials", zap.Error(err))
		return nil, err
	}
	return m.Login(ctx, username, password)
}

// Seal encrypts a password for the credential store.
func (m *Manager) Seal(password string) (string, error) {
	return m.vault.EncryptString(password)
}

func authenticationError(err error) error {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		reason := apiErr.Message
		if reason == "" {
			reason = apiErr.Code
		}
		return svcerrors.Wrap(err, svcerrors.WithReason(svcerrors.ErrAuthentication, reason))
	}
	var se *svcerrors.ServiceError
	if errors.As(err, &se) {
		return err
	}
	return svcerrors.Wrap(err, svcerrors.ErrAuthentication)
}

package auth

import (
	"context"
	"slices"
	"time"

	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	lockPollInterval = 200 * time.Millisecond
	// loginBudget bounds the provider login once the lock wait is over.
	loginBudget = time.Minute
)

// RefreshGroup collapses concurrent refreshes of the same local account into
// one provider login. Callers share it explicitly; there is no package level
// registry.
type RefreshGroup struct {
	group singleflight.Group
}

// NewRefreshGroup creates an empty refresh registry
func NewRefreshGroup() *RefreshGroup {
	return &RefreshGroup{}
}

// Do runs fn once per in-flight accountID. shared reports whether the result
// came from another caller's run. A caller whose ctx ends stops waiting; the
// run itself carries on for the others.
func (g *RefreshGroup) Do(ctx context.Context, accountID string, fn func() (*Refreshed, error)) (result *Refreshed, shared bool, err error) {
	ch := g.group.DoChan(accountID, func() (any, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		return nil, false, svcerrors.Wrap(ctx.Err(), svcerrors.ErrUpstreamUnavailable)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*Refreshed), res.Shared, nil
	}
}

// Refreshed is the outcome of a refresh.
type Refreshed struct {
	*models.ExternalAuth
	// Reused is set when a token stored by an earlier refresh was returned
	// without logging in.
	Reused bool
}

// CredentialStore is the subset of the repository the refresher needs.
type CredentialStore interface {
	GetCredentials(ctx context.Context, userID string) (*models.ExternalCredentials, error)
	UpdateSessionToken(ctx context.Context, userID, sessionToken string, connectedAt time.Time) error
}

// Locker is a cross-instance mutex keyed by string.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Refresher replaces an expired session token of a local account using the
// stored credentials.
type Refresher struct {
	manager *Manager
	store   CredentialStore
	group   *RefreshGroup
	locker  Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewRefresher creates a new refresher. locker may be nil for single-instance
// deployments.
func NewRefresher(manager *Manager, store CredentialStore, group *RefreshGroup, locker Locker, lockTTL time.Duration, logger *zap.Logger) *Refresher {
	if group == nil {
		group = NewRefreshGroup()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Refresher{
		manager: manager,
		store:   store,
		group:   group,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Refresh returns a session for userID that differs from every token in
// tried. A stored token outside tried was written by an earlier refresh and is
// reused without a login; otherwise the stored credentials log in again and
// the new token is written back to the credential store.
func (r *Refresher) Refresh(ctx context.Context, userID string, tried ...string) (*Refreshed, error) {
	result, shared, err := r.group.Do(ctx, userID, func() (*Refreshed, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lockTTL+loginBudget)
		defer cancel()
		return r.refresh(runCtx, userID, tried)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("Joined in-flight session refresh", zap.String("user_id", userID))
	}
	return result, nil
}

func (r *Refresher) refresh(ctx context.Context, userID string, tried []string) (*Refreshed, error) {
	creds, err := r.store.GetCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, svcerrors.ErrNoStoredCredentials
	}
	if fresh := untriedToken(creds, tried); fresh != nil {
		return fresh, nil
	}

	if r.locker != nil {
		key := "refresh_lock:" + userID
		lockToken, acquired, err := r.locker.AcquireLock(ctx, key, r.lockTTL)
		switch {
		case err != nil:
			r.logger.Warn("Refresh lock unavailable, refreshing without it", zap.String("user_id", userID), zap.Error(err))
		case acquired:
			defer func() {
				if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), key, lockToken); err != nil {
					r.logger.Warn("Failed to release refresh lock", zap.String("user_id", userID), zap.Error(err))
				}
			}()
		default:
			if fresh, err := r.waitForPeer(ctx, userID, tried); err != nil || fresh != nil {
				return fresh, err
			}
			r.logger.Warn("Peer refresh did not finish in time", zap.String("user_id", userID))
		}
	}

	auth, err := r.manager.Refresh(ctx, creds.ExternalUsername, creds.EncryptedPassword)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpdateSessionToken(ctx, userID, auth.SessionToken, time.Now().UTC()); err != nil {
		r.logger.Error("Failed to persist refreshed session", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	r.logger.Info("External session refreshed", zap.String("user_id", userID))
	return &Refreshed{ExternalAuth: auth}, nil
}

// waitForPeer polls the credential store while another instance holds the
// refresh lock. It returns nil, nil when the lock TTL passes without an
// untried token.
func (r *Refresher) waitForPeer(ctx context.Context, userID string, tried []string) (*Refreshed, error) {
	deadline := time.NewTimer(r.lockTTL)
	defer deadline.Stop()
	tick := time.NewTicker(lockPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, svcerrors.Wrap(ctx.Err(), svcerrors.ErrUpstreamUnavailable)
		case <-deadline.C:
			return nil, nil
		case <-tick.C:
			creds, err := r.store.GetCredentials(ctx, userID)
			if err != nil {
				return nil, err
			}
			if creds == nil {
				return nil, svcerrors.ErrNoStoredCredentials
			}
			if fresh := untriedToken(creds, tried); fresh != nil {
				return fresh, nil
			}
		}
	}
}

func untriedToken(creds *models.ExternalCredentials, tried []string) *Refreshed {
	if creds.SessionToken == "" || slices.Contains(tried, creds.SessionToken) {
		return nil
	}
	return &Refreshed{ExternalAuth: &models.ExternalAuth{SessionToken: creds.SessionToken}, Reused: true}
}

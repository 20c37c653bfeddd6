// Package characters runs the ingestion pipeline: fetch a record from the
// provider, decode it, normalize it and hand it to the sync engine.
package characters

import (
	"context"
	"errors"
	"time"

	"character-sync/internal/auth"
	"character-sync/internal/cache"
	"character-sync/internal/database"
	"character-sync/internal/decoder"
	"character-sync/internal/models"
	"character-sync/internal/normalizer"
	"character-sync/internal/upstream"
	svcerrors "character-sync/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListConcurrency = 8
	// maxReusedSessions bounds how many stored tokens a sync tries before the
	// refresh has to log in.
	maxReusedSessions = 2
)

// Options tunes the service.
type Options struct {
	ListConcurrency int
	// ListingCacheTTL is zero to disable listing caching.
	ListingCacheTTL time.Duration
}

// Service is the entry point for logins, listings, imports and syncs.
type Service struct {
	sessions  *auth.Manager
	refresher *auth.Refresher
	provider  upstream.Provider
	fetcher   *upstream.Fetcher
	decoder   *decoder.Decoder
	engine    *Engine
	repo      database.Repository
	cache     cache.Store
	opts      Options
	logger    *zap.Logger
}

// NewService creates a new character service. listings may be nil.
func NewService(
	sessions *auth.Manager,
	refresher *auth.Refresher,
	provider upstream.Provider,
	repo database.Repository,
	listings cache.Store,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.ListConcurrency <= 0 {
		opts.ListConcurrency = defaultListConcurrency
	}
	return &Service{
		sessions:  sessions,
		refresher: refresher,
		provider:  provider,
		fetcher:   upstream.NewFetcher(provider),
		decoder:   decoder.New(),
		engine:    NewEngine(repo, logger),
		repo:      repo,
		cache:     listings,
		opts:      opts,
		logger:    logger,
	}
}

// Login opens a provider session for identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.ExternalAuth, error) {
	return s.sessions.Login(ctx, identifier, password)
}

// LinkAccount logs in and stores the credentials, encrypted, for userID so
// later syncs can refresh the session on their own.
func (s *Service) LinkAccount(ctx context.Context, userID, identifier, password string) (*models.ExternalAuth, error) {
	session, err := s.sessions.Login(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	sealed, err := s.sessions.Seal(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.repo.SaveCredentials(ctx, &models.ExternalCredentials{
		UserID:            userID,
		ExternalUsername:  identifier,
		EncryptedPassword: sealed,
		SessionToken:      session.SessionToken,
		ConnectedAt:       &now,
	}); err != nil {
		return nil, err
	}
	s.logger.Info("External account linked", zap.String("user_id", userID), zap.String("account_id", session.ExternalAccountID))
	return session, nil
}

// ListCharacters resolves every character-like record of the session's data
// bag. Records are resolved concurrently and a record that cannot be read is
// reported in Skipped without failing the others.
func (s *Service) ListCharacters(ctx context.Context, sessionToken string) (*models.CharacterListing, error) {
	if s.cache != nil && s.opts.ListingCacheTTL > 0 {
		if cached, err := s.cache.GetListing(ctx, sessionToken); err == nil && cached != nil {
			return cached, nil
		}
	}

	bag, err := s.fetcher.FetchDataBag(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	records := upstream.ListCharacterKeys(bag)

	type outcome struct {
		summary *models.CharacterSummary
		skipped *models.SkippedRecord
	}
	results := make([]outcome, len(records))

	var g errgroup.Group
	g.SetLimit(s.opts.ListConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			decoded, err := s.resolve(rec)
			if err != nil {
				results[i].skipped = &models.SkippedRecord{Key: rec.Key, Reason: svcerrors.As(err).Message}
				return nil
			}
			results[i].summary = &models.CharacterSummary{
				ID:           decoded.CharacterID,
				Name:         decoded.CharacterName,
				LastModified: decoded.LastModified,
				IsCampaign:   decoded.IsCampaign,
			}
			return nil
		})
	}
	_ = g.Wait()

	listing := &models.CharacterListing{Characters: make([]models.CharacterSummary, 0, len(records))}
	for _, r := range results {
		switch {
		case r.summary != nil:
			listing.Characters = append(listing.Characters, *r.summary)
		case r.skipped != nil:
			listing.Skipped = append(listing.Skipped, *r.skipped)
		}
	}
	if len(listing.Skipped) > 0 {
		s.logger.Warn("Skipped unreadable records", zap.Int("skipped", len(listing.Skipped)), zap.Int("total", len(records)))
	}

	if s.cache != nil && s.opts.ListingCacheTTL > 0 {
		if err := s.cache.SetListing(ctx, sessionToken, listing, s.opts.ListingCacheTTL); err != nil {
			s.logger.Warn("Failed to cache listing", zap.Error(err))
		}
	}
	return listing, nil
}

// resolve decodes one record and resolves its display name and timestamp.
func (s *Service) resolve(rec models.RawCharacterRecord) (*models.DecodedCharacter, error) {
	data, err := s.decoder.Decode(rec.RawValue)
	if err != nil {
		s.logger.Warn("Failed to decode record", zap.String("record_key", rec.Key))
		return nil, err
	}
	isCampaign := rec.Kind == models.KindCampaign
	return &models.DecodedCharacter{
		CharacterID:   rec.Key,
		CharacterName: normalizer.ResolveName(data, rec.Key, isCampaign),
		Data:          data,
		LastModified:  normalizer.ResolveLastModified(data, rec.LastUpdatedAt),
		IsCampaign:    isCampaign,
	}, nil
}

// ImportCharacter pulls one record of the session's account into the local
// store under localAccountID.
func (s *Service) ImportCharacter(ctx context.Context, localAccountID, sessionToken, externalID string) (*models.Character, error) {
	decoded, err := s.pull(ctx, sessionToken, externalID)
	if err != nil {
		return nil, err
	}
	character, err := s.engine.ImportOrUpdate(ctx, localAccountID, externalID, normalizer.Normalize(decoded.Data), decoded.CharacterName, decoded.Data, sessionToken)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateListing(ctx, sessionToken)
	}
	return character, nil
}

// SyncCharacter refreshes an imported character from the provider. When the
// session has expired it is refreshed with the owner's stored credentials and
// the fetch is retried.
func (s *Service) SyncCharacter(ctx context.Context, record *models.Character) (*models.Character, error) {
	if record == nil {
		return nil, svcerrors.ErrNotFound
	}
	if !record.IsExternal || record.ExternalID == nil || *record.ExternalID == "" {
		return nil, svcerrors.WithReason(svcerrors.ErrInvalidRequest, "character was not imported from an external account")
	}
	externalID := *record.ExternalID

	token, err := s.sessionFor(ctx, record)
	if err != nil {
		return nil, err
	}

	var decoded *models.DecodedCharacter
	if token != "" {
		decoded, err = s.pull(ctx, token, externalID)
	}
	if token == "" || errors.Is(err, svcerrors.ErrSessionExpired) {
		token, decoded, err = s.refreshAndPull(ctx, record, token)
	}
	if err != nil {
		return nil, err
	}

	return s.engine.ImportOrUpdate(ctx, record.UserID, externalID, normalizer.Normalize(decoded.Data), decoded.CharacterName, decoded.Data, token)
}

// refreshAndPull replaces the expired session of record's owner and fetches
// the record again. A token reused from the credential store that has expired
// too is followed by a real login; a fresh login is tried once.
func (s *Service) refreshAndPull(ctx context.Context, record *models.Character, expired string) (string, *models.DecodedCharacter, error) {
	externalID := *record.ExternalID
	var tried []string
	if expired != "" {
		tried = append(tried, expired)
	}

	for attempt := 0; ; attempt++ {
		s.logger.Info("External session expired, refreshing", zap.String("character_id", record.ID), zap.String("user_id", record.UserID), zap.Int("attempt", attempt))
		session, err := s.refresher.Refresh(ctx, record.UserID, tried...)
		if err != nil {
			return "", nil, err
		}

		decoded, err := s.pull(ctx, session.SessionToken, externalID)
		if err == nil {
			return session.SessionToken, decoded, nil
		}
		if session.Reused && errors.Is(err, svcerrors.ErrSessionExpired) && attempt < maxReusedSessions {
			tried = append(tried, session.SessionToken)
			continue
		}
		if !session.Reused && !errors.Is(err, svcerrors.ErrSessionExpired) {
			if uerr := s.repo.UpdateCharacterSessionToken(ctx, record.ID, session.SessionToken); uerr != nil {
				s.logger.Warn("Failed to keep refreshed session on character", zap.String("character_id", record.ID), zap.Error(uerr))
			}
		}
		return "", nil, err
	}
}

// sessionFor picks the token to sync record with: the one it was last synced
// with, else the owner's stored session. Empty means a refresh is needed.
func (s *Service) sessionFor(ctx context.Context, record *models.Character) (string, error) {
	if record.ExternalSessionToken != nil && *record.ExternalSessionToken != "" {
		return *record.ExternalSessionToken, nil
	}
	creds, err := s.repo.GetCredentials(ctx, record.UserID)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", svcerrors.ErrNoStoredCredentials
	}
	return creds.SessionToken, nil
}

// ImportFromShareKey reads a publicly shared record through a throwaway
// anonymous session. Nothing is stored.
func (s *Service) ImportFromShareKey(ctx context.Context, shareKey string) (*models.DecodedCharacter, error) {
	key, err := ParseShareKey(shareKey)
	if err != nil {
		return nil, err
	}
	session, err := s.provider.LoginAnonymous(ctx)
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			return nil, svcerrors.Wrap(err, svcerrors.ErrUpstreamUnavailable)
		}
		return nil, err
	}

	rec, err := s.fetcher.FetchRecord(ctx, session.SessionToken, key.AccountID, key.RecordKey)
	if err != nil {
		return nil, err
	}
	return s.resolve(*rec)
}

// pull fetches and decodes one record of the session's own account.
func (s *Service) pull(ctx context.Context, sessionToken, externalID string) (*models.DecodedCharacter, error) {
	rec, err := s.fetcher.FetchRecord(ctx, sessionToken, "", externalID)
	if err != nil {
		return nil, err
	}
	return s.resolve(*rec)
}

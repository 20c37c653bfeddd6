package characters

import (
	"context"
	"encoding/json"
	"time"

	"character-sync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CharacterStore is the persistence the sync engine writes through.
type CharacterStore interface {
	GetCharacterByExternalID(ctx context.Context, externalID string) (*models.Character, error)
	UpsertCharacter(ctx context.Context, character *models.Character) (*models.Character, error)
}

// Engine turns normalized sheets into local character records.
type Engine struct {
	store  CharacterStore
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new sync engine
func NewEngine(store CharacterStore, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ImportOrUpdate creates the local record for externalID, owned by
// localAccountID, or overwrites the sheet of the record already imported from
// it. The existing owner is kept and not re-checked against localAccountID.
// An empty sessionToken leaves the stored token untouched.
func (e *Engine) ImportOrUpdate(ctx context.Context, localAccountID, externalID string, normalized models.NormalizedCharacter, name string, raw json.RawMessage, sessionToken string) (*models.Character, error) {
	existing, err := e.store.GetCharacterByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.UserID != localAccountID {
		e.logger.Warn("Updating character owned by another account",
			zap.String("character_id", existing.ID),
			zap.String("external_id", externalID),
			zap.String("owner_id", existing.UserID),
			zap.String("user_id", localAccountID))
	}

	now := e.now()
	record := &models.Character{
		ID:                  uuid.NewString(),
		UserID:              localAccountID,
		Name:                name,
		IsExternal:          true,
		ExternalID:          &externalID,
		LastSyncedAt:        &now,
		RawData:             raw,
		CreatedAt:           now,
		UpdatedAt:           now,
		NormalizedCharacter: normalized,
	}
	if existing != nil {
		record.ID = existing.ID
		record.UserID = existing.UserID
		record.CreatedAt = existing.CreatedAt
	}
	if sessionToken != "" {
		record.ExternalSessionToken = &sessionToken
	}

	saved, err := e.store.UpsertCharacter(ctx, record)
	if err != nil {
		return nil, err
	}

	action := "created"
	if existing != nil {
		action = "updated"
	}
	e.logger.Info("Character synced",
		zap.String("character_id", saved.ID),
		zap.String("external_id", externalID),
		zap.String("action", action))
	return saved, nil
}

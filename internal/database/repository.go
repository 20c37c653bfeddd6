package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"go.uber.org/zap"
)

// Repository defines the interface for database operations
type Repository interface {
	Close() error
	EnsureSchema(ctx context.Context) error

	// Credentials
	GetCredentials(ctx context.Context, userID string) (*models.ExternalCredentials, error)
	SaveCredentials(ctx context.Context, creds *models.ExternalCredentials) error
	UpdateSessionToken(ctx context.Context, userID, sessionToken string, connectedAt time.Time) error

	// Characters
	GetCharacterByID(ctx context.Context, id string) (*models.Character, error)
	GetCharacterByExternalID(ctx context.Context, externalID string) (*models.Character, error)
	UpsertCharacter(ctx context.Context, character *models.Character) (*models.Character, error)
	UpdateCharacterSessionToken(ctx context.Context, id, sessionToken string) error
}

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLRepository handles database operations for both supported drivers
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

var _ Repository = (*SQLRepository)(nil)

// NewRepository creates a new repository instance. sqlite:// URLs open an
// embedded database file; anything else goes through the postgres opener.
func NewRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (*SQLRepository, error) {
	if path, ok := strings.CutPrefix(databaseURL, sqliteScheme); ok {
		db, err := openSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return &SQLRepository{db: db, dialect: dialectSQLite, logger: logger}, nil
	}

	db, err := openPostgres(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	return &SQLRepository{db: db, dialect: dialectPostgres, logger: logger}, nil
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// GetCredentials returns the stored provider credentials of a local account,
// or nil when none are linked.
func (r *SQLRepository) GetCredentials(ctx context.Context, userID string) (*models.ExternalCredentials, error) {
	query := r.dialect.rebind(`
		SELECT user_id, external_username, external_password_enc, external_session_token, external_connected_at
		FROM external_credentials
		WHERE user_id = ?
	`)

	var creds models.ExternalCredentials
	var connectedAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&creds.UserID,
		&creds.ExternalUsername,
		&creds.EncryptedPassword,
		&creds.SessionToken,
		&connectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get credentials", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	creds.ConnectedAt = timePtr(connectedAt)
	return &creds, nil
}

// SaveCredentials inserts or replaces the credentials of a local account.
func (r *SQLRepository) SaveCredentials(ctx context.Context, creds *models.ExternalCredentials) error {
	query := r.dialect.rebind(`
		INSERT INTO external_credentials (user_id, external_username, external_password_enc, external_session_token, external_connected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET external_username = excluded.external_username,
		    external_password_enc = excluded.external_password_enc,
		    external_session_token = excluded.external_session_token,
		    external_connected_at = excluded.external_connected_at,
		    updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query,
		creds.UserID,
		creds.ExternalUsername,
		creds.EncryptedPassword,
		creds.SessionToken,
		nullMillis(creds.ConnectedAt),
		toMillis(time.Now()),
	)
	if err != nil {
		r.logger.Error("Failed to save credentials", zap.String("user_id", creds.UserID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateSessionToken records a refreshed session for a linked account.
func (r *SQLRepository) UpdateSessionToken(ctx context.Context, userID, sessionToken string, connectedAt time.Time) error {
	query := r.dialect.rebind(`
		UPDATE external_credentials
		SET external_session_token = ?, external_connected_at = ?, updated_at = ?
		WHERE user_id = ?
	`)

	res, err := r.db.ExecContext(ctx, query, sessionToken, toMillis(connectedAt), toMillis(time.Now()), userID)
	if err != nil {
		r.logger.Error("Failed to update session token", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return svcerrors.ErrNoStoredCredentials
	}
	return nil
}

const characterColumns = `id, user_id, name, is_external, external_id, external_session_token, last_synced_at, raw_data,
	level, abilities, combat, saves, skills, feats, special_abilities, weapons, armor, spells, info, created_at, updated_at`

// GetCharacterByID retrieves a character by its local id
func (r *SQLRepository) GetCharacterByID(ctx context.Context, id string) (*models.Character, error) {
	query := r.dialect.rebind(`SELECT ` + characterColumns + ` FROM characters WHERE id = ?`)
	c, err := scanCharacter(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get character", zap.String("character_id", id), zap.Error(err))
		return nil, err
	}
	return c, nil
}

// GetCharacterByExternalID retrieves the character imported from externalID
func (r *SQLRepository) GetCharacterByExternalID(ctx context.Context, externalID string) (*models.Character, error) {
	query := r.dialect.rebind(`SELECT ` + characterColumns + ` FROM characters WHERE external_id = ?`)
	c, err := scanCharacter(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get character by external id", zap.String("external_id", externalID), zap.Error(err))
		return nil, err
	}
	return c, nil
}

// UpsertCharacter inserts character or, when its external id already exists,
// overwrites the sheet of the existing row in one statement. The existing
// row keeps its id, owner and creation time; a nil session token keeps the
// stored one.
func (r *SQLRepository) UpsertCharacter(ctx context.Context, character *models.Character) (*models.Character, error) {
	sheet, err := encodeSheet(&character.NormalizedCharacter)
	if err != nil {
		return nil, err
	}

	query := r.dialect.rebind(`
		INSERT INTO characters (` + characterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE
		SET name = excluded.name,
		    is_external = excluded.is_external,
		    external_session_token = COALESCE(excluded.external_session_token, characters.external_session_token),
		    last_synced_at = excluded.last_synced_at,
		    raw_data = excluded.raw_data,
		    level = excluded.level,
		    abilities = excluded.abilities,
		    combat = excluded.combat,
		    saves = excluded.saves,
		    skills = excluded.skills,
		    feats = excluded.feats,
		    special_abilities = excluded.special_abilities,
		    weapons = excluded.weapons,
		    armor = excluded.armor,
		    spells = excluded.spells,
		    info = excluded.info,
		    updated_at = excluded.updated_at
		RETURNING ` + characterColumns)

	args := []any{
		character.ID,
		character.UserID,
		character.Name,
		character.IsExternal,
		nullString(character.ExternalID),
		nullString(character.ExternalSessionToken),
		nullMillis(character.LastSyncedAt),
		nullRaw(character.RawData),
		character.Level,
	}
	args = append(args, sheet...)
	args = append(args, toMillis(character.CreatedAt), toMillis(character.UpdatedAt))

	saved, err := scanCharacter(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		r.logger.Error("Failed to upsert character", zap.String("character_id", character.ID), zap.Error(err))
		return nil, err
	}
	return saved, nil
}

// UpdateCharacterSessionToken stores the session token last used to sync a
// character.
func (r *SQLRepository) UpdateCharacterSessionToken(ctx context.Context, id, sessionToken string) error {
	query := r.dialect.rebind(`UPDATE characters SET external_session_token = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, sessionToken, toMillis(time.Now()), id)
	if err != nil {
		r.logger.Error("Failed to update character session token", zap.String("character_id", id), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return svcerrors.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (*models.Character, error) {
	var (
		c                                        models.Character
		externalID, sessionToken, rawData, armor sql.NullString
		lastSynced                               sql.NullInt64
		createdAt, updatedAt                     int64
		abilities, combat, saves, skills         string
		feats, special, weapons, spells, info    string
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.IsExternal,
		&externalID,
		&sessionToken,
		&lastSynced,
		&rawData,
		&c.Level,
		&abilities,
		&combat,
		&saves,
		&skills,
		&feats,
		&special,
		&weapons,
		&armor,
		&spells,
		&info,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ExternalID = stringPtr(externalID)
	c.ExternalSessionToken = stringPtr(sessionToken)
	c.LastSyncedAt = timePtr(lastSynced)
	if rawData.Valid {
		c.RawData = json.RawMessage(rawData.String)
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)

	parts := []struct {
		column string
		value  string
		dest   any
	}{
		{"abilities", abilities, &c.Abilities},
		{"combat", combat, &c.Combat},
		{"saves", saves, &c.Saves},
		{"skills", skills, &c.Skills},
		{"feats", feats, &c.Feats},
		{"special_abilities", special, &c.SpecialAbilities},
		{"weapons", weapons, &c.Weapons},
		{"spells", spells, &c.Spells},
		{"info", info, &c.Info},
	}
	if armor.Valid {
		parts = append(parts, struct {
			column string
			value  string
			dest   any
		}{"armor", armor.String, &c.Armor})
	}
	for _, p := range parts {
		if err := json.Unmarshal([]byte(p.value), p.dest); err != nil {
			return nil, fmt.Errorf("decode %s column: %w", p.column, err)
		}
	}
	return &c, nil
}

// encodeSheet returns the JSON columns in characterColumns order, from
// abilities through info.
func encodeSheet(n *models.NormalizedCharacter) ([]any, error) {
	values := []any{n.Abilities, n.Combat, n.Saves, n.Skills, n.Feats, n.SpecialAbilities, n.Weapons}
	out := make([]any, 0, 10)
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode sheet: %w", err)
		}
		out = append(out, string(b))
	}

	var armor sql.NullString
	if n.Armor != nil {
		b, err := json.Marshal(n.Armor)
		if err != nil {
			return nil, fmt.Errorf("encode armor: %w", err)
		}
		armor = sql.NullString{String: string(b), Valid: true}
	}
	out = append(out, armor)

	for _, v := range []any{n.Spells, n.Info} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode sheet: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

package models

import (
	"encoding/json"
	"time"
)

// ExternalAuth is a session issued by the character provider. Lifetime is
// decided by the provider (minutes to hours).
type ExternalAuth struct {
	ExternalAccountID string `json:"external_account_id"`
	SessionToken      string `json:"session_token"`
	EntityToken       string `json:"entity_token,omitempty"`
}

// ExternalCredentials is the credential store row kept per local account.
// EncryptedPassword holds the serialized vault secret, never plaintext.
type ExternalCredentials struct {
	UserID            string     `db:"user_id"`
	ExternalUsername  string     `db:"external_username"`
	EncryptedPassword string     `db:"external_password_enc"`
	SessionToken      string     `db:"external_session_token"`
	ConnectedAt       *time.Time `db:"external_connected_at"`
}

// RecordKind classifies a data bag key.
type RecordKind string

const (
	KindCharacter RecordKind = "character"
	KindCampaign  RecordKind = "campaign"
)

// RawCharacterRecord is one matched entry of a data bag. It only lives for a
// single fetch cycle.
type RawCharacterRecord struct {
	Key           string
	RawValue      string
	LastUpdatedAt *time.Time
	Kind          RecordKind
}

// DecodedCharacter is a decoded record with its resolved display name. Data
// is kept verbatim for re-extraction and debugging.
type DecodedCharacter struct {
	CharacterID   string          `json:"character_id"`
	CharacterName string          `json:"character_name"`
	Data          json.RawMessage `json:"data"`
	LastModified  time.Time       `json:"last_modified"`
	IsCampaign    bool            `json:"is_campaign"`
}

// CharacterSummary is one entry of a character listing.
type CharacterSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"last_modified"`
	IsCampaign   bool      `json:"is_campaign"`
}

// SkippedRecord is a listing entry that could not be resolved.
type SkippedRecord struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// CharacterListing is the partial-failure tolerant result of listing a data bag.
type CharacterListing struct {
	Characters []CharacterSummary `json:"characters"`
	Skipped    []SkippedRecord    `json:"skipped,omitempty"`
}

// Abilities holds the six ability scores.
type Abilities struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// Combat holds hit points, armor class variants and attack numbers.
type Combat struct {
	CurrentHP           int `json:"current_hp"`
	MaxHP               int `json:"max_hp"`
	TempHP              int `json:"temp_hp"`
	ArmorClass          int `json:"armor_class"`
	TouchAC             int `json:"touch_ac"`
	FlatFootedAC        int `json:"flat_footed_ac"`
	Initiative          int `json:"initiative"`
	Speed               int `json:"speed"`
	BaseAttackBonus     int `json:"base_attack_bonus"`
	CombatManeuverBonus int `json:"cmb"`
	CombatManeuverDef   int `json:"cmd"`
}

// Saves holds the three saving throws.
type Saves struct {
	Fortitude int `json:"fortitude"`
	Reflex    int `json:"reflex"`
	Will      int `json:"will"`
}

// Skill is one entry of the skill table.
type Skill struct {
	Ranks        int  `json:"ranks"`
	Total        int  `json:"total"`
	Misc         int  `json:"misc"`
	IsClassSkill bool `json:"is_class_skill"`
}

// Weapon is one attack line.
type Weapon struct {
	Name        string `json:"name"`
	AttackBonus string `json:"attack_bonus"`
	Damage      string `json:"damage"`
	Critical    string `json:"critical"`
	Range       string `json:"range"`
	Type        string `json:"type"`
	Notes       string `json:"notes"`
}

// Armor is the worn armor. MaxDex is nil when the armor does not cap dexterity.
type Armor struct {
	Name         string `json:"name"`
	ACBonus      int    `json:"ac_bonus"`
	MaxDex       *int   `json:"max_dex,omitempty"`
	CheckPenalty int    `json:"check_penalty"`
	SpellFailure int    `json:"spell_failure"`
	Type         string `json:"type"`
}

// BasicInfo holds the optional descriptive strings.
type BasicInfo struct {
	Race      string `json:"race,omitempty"`
	Alignment string `json:"alignment,omitempty"`
	Deity     string `json:"deity,omitempty"`
	Size      string `json:"size,omitempty"`
}

// NormalizedCharacter is the canonical attribute set extracted from a
// decoded record. Every field has a default, so it is always complete.
type NormalizedCharacter struct {
	Abilities        Abilities        `json:"abilities"`
	Level            int              `json:"level"`
	Combat           Combat           `json:"combat"`
	Saves            Saves            `json:"saves"`
	Skills           map[string]Skill `json:"skills"`
	Feats            []string         `json:"feats"`
	SpecialAbilities []string         `json:"special_abilities"`
	Weapons          []Weapon         `json:"weapons"`
	Armor            *Armor           `json:"armor,omitempty"`
	Spells           map[int][]string `json:"spells"`
	Info             BasicInfo        `json:"info"`
}

// Character is the local character record.
type Character struct {
	ID                   string          `db:"id" json:"id"`
	UserID               string          `db:"user_id" json:"user_id"`
	Name                 string          `db:"name" json:"name"`
	IsExternal           bool            `db:"is_external" json:"is_external"`
	ExternalID           *string         `db:"external_id" json:"external_id,omitempty"`
	ExternalSessionToken *string         `db:"external_session_token" json:"-"`
	LastSyncedAt         *time.Time      `db:"last_synced_at" json:"last_synced_at,omitempty"`
	RawData              json.RawMessage `db:"raw_data" json:"raw_data,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`

	NormalizedCharacter
}

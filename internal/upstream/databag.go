package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"github.com/tidwall/gjson"
)

// MaxCharacterKeys caps how many records a listing fans out to.
const MaxCharacterKeys = 50

var (
	characterKeyPattern = regexp.MustCompile(`^character\d+$`)
	campaignKeyPattern  = regexp.MustCompile(`^(gm|shared)\d+$`)
)

// DataEntry is one value of the data bag.
type DataEntry struct {
	Value       string
	LastUpdated *time.Time
	Permission  string
}

// DataBag is the account's key-value store. Keys keeps the order in which the
// provider returned them.
type DataBag struct {
	Keys   []string
	Values map[string]DataEntry
}

// Get returns the entry stored under key.
func (b *DataBag) Get(key string) (DataEntry, bool) {
	if b == nil {
		return DataEntry{}, false
	}
	e, ok := b.Values[key]
	return e, ok
}

// ParseDataBag reads the GetUserData payload, {"Data":{key:{Value,...}}}.
// encoding/json maps lose key order, so the object is walked with gjson.
func ParseDataBag(raw json.RawMessage) (*DataBag, error) {
	bag := &DataBag{Values: make(map[string]DataEntry)}
	if len(raw) == 0 {
		return bag, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, svcerrors.Wrap(fmt.Errorf("malformed user data payload"), svcerrors.ErrUpstreamUnavailable)
	}

	data := gjson.GetBytes(raw, "Data")
	data.ForEach(func(key, entry gjson.Result) bool {
		k := key.String()
		e := DataEntry{
			Value:      entry.Get("Value").String(),
			Permission: entry.Get("Permission").String(),
		}
		if ts := entry.Get("LastUpdated").String(); ts != "" {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				t = t.UTC()
				e.LastUpdated = &t
			}
		}
		if _, dup := bag.Values[k]; !dup {
			bag.Keys = append(bag.Keys, k)
		}
		bag.Values[k] = e
		return true
	})
	return bag, nil
}

// KindOf classifies a data bag key; ok is false for keys that hold no
// character data.
func KindOf(key string) (models.RecordKind, bool) {
	switch {
	case characterKeyPattern.MatchString(key):
		return models.KindCharacter, true
	case campaignKeyPattern.MatchString(key):
		return models.KindCampaign, true
	}
	return "", false
}

// ListCharacterKeys keeps the character-like keys of bag in bag order,
// capped at MaxCharacterKeys.
func ListCharacterKeys(bag *DataBag) []models.RawCharacterRecord {
	var records []models.RawCharacterRecord
	if bag == nil {
		return records
	}
	for _, key := range bag.Keys {
		kind, ok := KindOf(key)
		if !ok {
			continue
		}
		entry := bag.Values[key]
		records = append(records, models.RawCharacterRecord{
			Key:           key,
			RawValue:      entry.Value,
			LastUpdatedAt: entry.LastUpdated,
			Kind:          kind,
		})
		if len(records) == MaxCharacterKeys {
			break
		}
	}
	return records
}

// Fetcher retrieves data bags and single records through a Provider.
type Fetcher struct {
	provider Provider
}

// NewFetcher creates a new data bag fetcher
func NewFetcher(provider Provider) *Fetcher {
	return &Fetcher{provider: provider}
}

// FetchDataBag returns the full data bag of the session's account.
func (f *Fetcher) FetchDataBag(ctx context.Context, sessionToken string) (*DataBag, error) {
	return f.provider.GetUserData(ctx, sessionToken, DataRequest{})
}

// FetchRecord returns one character-like record, from the session's own
// account or, when accountID is set, from another account's public data.
func (f *Fetcher) FetchRecord(ctx context.Context, sessionToken, accountID, key string) (*models.RawCharacterRecord, error) {
	kind, ok := KindOf(key)
	if !ok {
		return nil, svcerrors.WithReason(svcerrors.ErrNotFound, fmt.Sprintf("%q is not a character key", key))
	}
	bag, err := f.provider.GetUserData(ctx, sessionToken, DataRequest{Keys: []string{key}, PlayFabID: accountID})
	if err != nil {
		return nil, err
	}
	entry, ok := bag.Get(key)
	if !ok || entry.Value == "" {
		return nil, svcerrors.WithReason(svcerrors.ErrNotFound, fmt.Sprintf("%s not found", key))
	}
	return &models.RawCharacterRecord{
		Key:           key,
		RawValue:      entry.Value,
		LastUpdatedAt: entry.LastUpdated,
		Kind:          kind,
	}, nil
}

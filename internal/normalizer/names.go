package normalizer

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

var (
	characterInfoName = StringAtAny("characterInfo.name", "characterInfo.characterName")
	campaignName      = StringAtAny("campaignInfo.name", "campaign.name", "campaignName")
	topLevelName      = StringAtAny("name", "characterName", "Name", "CharacterName")
)

// ResolveName picks the display name of a decoded record: character info
// name, then campaign name for campaign records, then top-level name
// variants, then characterID. It never returns a placeholder like "Unnamed".
func ResolveName(data json.RawMessage, characterID string, isCampaign bool) string {
	root := gjson.ParseBytes(data)

	accs := append([]Accessor[string]{}, characterInfoName...)
	if isCampaign {
		accs = append(accs, campaignName...)
	}
	accs = append(accs, topLevelName...)
	return First(root, characterID, accs...)
}

// ResolveLastModified prefers the data bag timestamp and falls back to a
// timestamp stored inside the document. The zero time means unknown.
func ResolveLastModified(data json.RawMessage, bagTimestamp *time.Time) time.Time {
	if bagTimestamp != nil && !bagTimestamp.IsZero() {
		return bagTimestamp.UTC()
	}
	root := gjson.ParseBytes(data)
	return First(root, time.Time{}, timeAt("lastModified"), timeAt("updatedAt"), timeAt("lastUpdated"))
}

// timeAt reads RFC 3339 strings or unix milliseconds.
func timeAt(path string) Accessor[time.Time] {
	return func(root gjson.Result) (time.Time, bool) {
		v := root.Get(path)
		switch v.Type {
		case gjson.String:
			t, err := time.Parse(time.RFC3339Nano, v.Str)
			if err != nil {
				return time.Time{}, false
			}
			return t.UTC(), true
		case gjson.Number:
			if v.Int() <= 0 {
				return time.Time{}, false
			}
			return time.UnixMilli(v.Int()).UTC(), true
		}
		return time.Time{}, false
	}
}

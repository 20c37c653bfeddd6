package characters

import (
	"regexp"
	"strings"

	"character-sync/internal/upstream"
	svcerrors "character-sync/pkg/errors"
)

var shareKeyPattern = regexp.MustCompile(`^([0-9A-Fa-f]{8,32})[:/-]([A-Za-z]+\d+)$`)

// ShareKey points at a publicly shared record of another account.
type ShareKey struct {
	AccountID string
	RecordKey string
}

// ParseShareKey accepts "<accountId>:<recordKey>", with "/" or "-" also
// allowed as the separator. The account id is 8 to 32 hex digits and the
// record key must name a character or campaign record.
func ParseShareKey(raw string) (ShareKey, error) {
	raw = strings.TrimSpace(raw)
	m := shareKeyPattern.FindStringSubmatch(raw)
	if m == nil {
		return ShareKey{}, svcerrors.WithReason(svcerrors.ErrInvalidShareKey, "expected <account id>:<record key>")
	}
	if _, ok := upstream.KindOf(m[2]); !ok {
		return ShareKey{}, svcerrors.WithReason(svcerrors.ErrInvalidShareKey, "record key is not a character record")
	}
	return ShareKey{AccountID: strings.ToUpper(m[1]), RecordKey: m[2]}, nil
}

func (k ShareKey) String() string {
	return k.AccountID + ":" + k.RecordKey
}

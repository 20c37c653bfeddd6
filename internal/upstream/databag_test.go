package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"character-sync/internal/models"
	svcerrors "character-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCharacterKeys_FiltersAndKeepsOrder(t *testing.T) {
	raw := json.RawMessage(`{"Data":{
		"shared1":{"Value":"a"},
		"settings":{"Value":"b"},
		"character10":{"Value":"c"},
		"gm2":{"Value":"d"},
		"character":{"Value":"e"},
		"xcharacter1":{"Value":"f"},
		"character3":{"Value":"g"},
		"gm":{"Value":"h"},
		"character3x":{"Value":"i"}
	}}`)
	bag, err := ParseDataBag(raw)
	require.NoError(t, err)

	records := ListCharacterKeys(bag)
	var keys []string
	for _, r := range records {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"shared1", "character10", "gm2", "character3"}, keys)
	assert.Equal(t, models.KindCampaign, records[0].Kind)
	assert.Equal(t, models.KindCharacter, records[1].Kind)
	assert.Equal(t, "c", records[1].RawValue)
}

func TestListCharacterKeys_CapsFanOut(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"Data":{`)
	for i := 0; i < 80; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `"character%d":{"Value":"x"}`, i)
	}
	b.WriteString(`}}`)

	bag, err := ParseDataBag(json.RawMessage(b.String()))
	require.NoError(t, err)

	records := ListCharacterKeys(bag)
	require.Len(t, records, MaxCharacterKeys)
	assert.Equal(t, "character0", records[0].Key)
	assert.Equal(t, "character49", records[49].Key)
}

func TestParseDataBag_Malformed(t *testing.T) {
	_, err := ParseDataBag(json.RawMessage(`{"Data":`))
	assert.True(t, errors.Is(err, svcerrors.ErrUpstreamUnavailable))

	bag, err := ParseDataBag(nil)
	require.NoError(t, err)
	assert.Empty(t, ListCharacterKeys(bag))
}

type stubProvider struct {
	Provider
	bag *DataBag
	err error
	req DataRequest
}

func (s *stubProvider) GetUserData(_ context.Context, _ string, req DataRequest) (*DataBag, error) {
	s.req = req
	return s.bag, s.err
}

func TestFetcher_FetchRecord(t *testing.T) {
	bag, err := ParseDataBag(json.RawMessage(`{"Data":{"gm1":{"Value":"e30=","LastUpdated":"2024-05-01T00:00:00Z"}}}`))
	require.NoError(t, err)
	stub := &stubProvider{bag: bag}
	f := NewFetcher(stub)

	rec, err := f.FetchRecord(context.Background(), "ticket", "ACCOUNT1", "gm1")
	require.NoError(t, err)
	assert.Equal(t, models.KindCampaign, rec.Kind)
	assert.Equal(t, DataRequest{Keys: []string{"gm1"}, PlayFabID: "ACCOUNT1"}, stub.req)

	_, err = f.FetchRecord(context.Background(), "ticket", "", "character7")
	assert.True(t, errors.Is(err, svcerrors.ErrNotFound))

	_, err = f.FetchRecord(context.Background(), "ticket", "", "settings")
	assert.True(t, errors.Is(err, svcerrors.ErrNotFound))
}

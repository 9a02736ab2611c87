package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		valid bool
		want  time.Time
	}{
		{"rfc3339", "2030-01-02T03:04:05Z", true, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"offset", "2030-01-02T05:04:05+02:00", true, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"naive is utc", "2030-01-02T03:04:05", true, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"naive micros", "2030-01-02T03:04:05.123456", true, time.Date(2030, 1, 2, 3, 4, 5, 123456000, time.UTC)},
		{"empty", "", false, time.Time{}},
		{"garbage", "not-a-date", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseTimestamp(tt.raw)
			assert.Equal(t, tt.valid, ts.Valid)
			if tt.valid {
				assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
			}
		})
	}
}

func TestMemeUnmarshalTolerant(t *testing.T) {
	raw := `{
		"id": "m7", "ticker": "DOGE", "current_price": 1.25, "available_shares": 40,
		"ipo_end_at": "garbage", "ipo_price": null,
		"upvotes": 3, "downvotes": 1, "user_has_upvoted": true
	}`
	var m Meme
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "m7", m.ID)
	assert.False(t, m.IPOEndAt.Valid)
	assert.Nil(t, m.IPOSharesRemaining)
	assert.Nil(t, m.IPOPrice)
	assert.Equal(t, "1.25", m.CurrentPrice.String())
	assert.True(t, m.UserHasUpvoted)

	raw = `{"id": "m8", "ipo_end_at": "2030-01-01T00:00:00", "ipo_shares_remaining": 0, "ipo_price": "2.5"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.NotNil(t, m.IPOSharesRemaining)
	assert.Equal(t, int64(0), *m.IPOSharesRemaining)
	assert.True(t, m.IPOEndAt.Valid)
	require.NotNil(t, m.IPOPrice)
	assert.Equal(t, "2.5", m.IPOPrice.String())
}

func TestSortValidation(t *testing.T) {
	assert.True(t, SortUpvotes.Valid())
	assert.False(t, SortKey("created_at").Valid())
	assert.True(t, SortAsc.Valid())
	assert.False(t, SortOrder("up").Valid())
}

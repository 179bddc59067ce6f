package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Empty(t *testing.T) {
	meta, err := Parse("")
	require.NoError(t, err)
	assert.True(t, meta.IsEmpty())
	assert.Equal(t, "", meta.String())
}

func TestParse_Valid(t *testing.T) {
	meta, err := Parse(`{"source_account_id":12,"source_account_name":"cafe_tashkent","followers_count":1500,"record_count":4}`)
	require.NoError(t, err)

	assert.Equal(t, int64(12), meta.SourceAccountID)
	assert.Equal(t, "cafe_tashkent", meta.SourceAccountName)
	require.NotNil(t, meta.FollowersCount)
	assert.Equal(t, int64(1500), *meta.FollowersCount)
	assert.Equal(t, 4, meta.RecordCount)
	assert.False(t, meta.IsEmpty())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(`{"source_account_id":`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse sync metadata JSON")
}

func TestString_RoundTripKeepsFollowers(t *testing.T) {
	followers := int64(0)
	meta := &SyncMetadata{SourceAccountID: 3, FollowersCount: &followers}

	parsed, err := Parse(meta.String())
	require.NoError(t, err)
	require.NotNil(t, parsed.FollowersCount)
	assert.Equal(t, int64(0), *parsed.FollowersCount)
}

func TestValidate(t *testing.T) {
	negative := int64(-1)

	tests := []struct {
		name    string
		meta    SyncMetadata
		wantErr string
	}{
		{"valid", SyncMetadata{SourceAccountID: 1, RecordCount: 2}, ""},
		{"negative account", SyncMetadata{SourceAccountID: -1}, "source_account_id"},
		{"negative records", SyncMetadata{RecordCount: -3}, "record_count"},
		{"negative followers", SyncMetadata{FollowersCount: &negative}, "followers_count"},
		{"long note", SyncMetadata{Note: strings.Repeat("n", 501)}, "note too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

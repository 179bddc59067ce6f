// Package metadata provides structured parsing and validation for the sync_metadata
// JSON stored alongside each synced KPI value.
package metadata

import (
	"encoding/json"
	"fmt"
)

// SyncMetadata records where a synced KPI value came from.
type SyncMetadata struct {
	SourceAccountID   int64  `json:"source_account_id,omitempty"`   // mirrored account/page/integration row id
	SourceAccountName string `json:"source_account_name,omitempty"` // e.g. instagram username or page name
	RecordCount       int    `json:"record_count,omitempty"`        // mirrored records the value was computed from
	// FollowersCount snapshots the audience size so the next day can compute growth.
	FollowersCount *int64 `json:"followers_count,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	Note           string `json:"note,omitempty"`
}

// Parse parses a JSON string into SyncMetadata. An empty string yields empty metadata.
func Parse(jsonStr string) (*SyncMetadata, error) {
	if jsonStr == "" {
		return &SyncMetadata{}, nil
	}

	var meta SyncMetadata
	if err := json.Unmarshal([]byte(jsonStr), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse sync metadata JSON: %w", err)
	}

	return &meta, nil
}

// String serializes SyncMetadata to JSON. Empty metadata serializes to "".
func (m *SyncMetadata) String() string {
	if m == nil || m.IsEmpty() {
		return ""
	}

	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}

	return string(data)
}

// IsEmpty checks if metadata has any non-zero values.
func (m *SyncMetadata) IsEmpty() bool {
	return m.SourceAccountID == 0 &&
		m.SourceAccountName == "" &&
		m.RecordCount == 0 &&
		m.FollowersCount == nil &&
		m.RunID == "" &&
		m.Note == ""
}

// Validate validates metadata fields and returns error if invalid.
func (m *SyncMetadata) Validate() error {
	if m.SourceAccountID < 0 {
		return fmt.Errorf("source_account_id must not be negative, got %d", m.SourceAccountID)
	}
	if m.RecordCount < 0 {
		return fmt.Errorf("record_count must not be negative, got %d", m.RecordCount)
	}
	if m.FollowersCount != nil && *m.FollowersCount < 0 {
		return fmt.Errorf("followers_count must not be negative, got %d", *m.FollowersCount)
	}
	if len(m.SourceAccountName) > 255 {
		return fmt.Errorf("source_account_name too long: max 255 characters, got %d", len(m.SourceAccountName))
	}
	if len(m.Note) > 500 {
		return fmt.Errorf("note too long: max 500 characters, got %d", len(m.Note))
	}
	return nil
}

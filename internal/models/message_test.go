package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMessageEditThenDelete(t *testing.T) {
	msg := Message{ID: 7, Content: strPtr("original")}

	msg.ApplyEdit("revised")
	require.Equal(t, "revised", msg.Text())
	require.Equal(t, EditHistory{"original"}, msg.EditHistory)

	msg.ApplyDelete()
	require.Equal(t, DeletedMarker, msg.Text())
	require.True(t, msg.IsDeleted)
	require.Equal(t, EditHistory{"original", "revised"}, msg.EditHistory)
}

func TestMessageHistoryGrowsOnePerMutation(t *testing.T) {
	msg := Message{Content: strPtr("v0")}
	contents := []string{"v1", "v2", "v3", "v4"}

	var prior []string
	for i, c := range contents {
		prior = append(prior, msg.Text())
		msg.ApplyEdit(c)
		require.Len(t, msg.EditHistory, i+1)
	}
	prior = append(prior, msg.Text())
	msg.ApplyDelete()

	require.Len(t, msg.EditHistory, len(contents)+1)
	require.Equal(t, EditHistory(prior), msg.EditHistory)
}

func TestEditFileMessageRecordsEmptyContent(t *testing.T) {
	msg := Message{FileURL: strPtr("/static/a.png"), FileType: strPtr("image")}
	msg.ApplyEdit("caption")
	require.Equal(t, EditHistory{""}, msg.EditHistory)
}

func TestEditHistoryScanAndValue(t *testing.T) {
	var h EditHistory
	require.NoError(t, h.Scan(nil))
	require.Nil(t, h)

	require.NoError(t, h.Scan([]byte(`["a","b"]`)))
	require.Equal(t, EditHistory{"a", "b"}, h)

	require.NoError(t, h.Scan(`["c"]`))
	require.Equal(t, EditHistory{"c"}, h)

	require.Error(t, h.Scan(42))
	require.Error(t, h.Scan("not json"))

	v, err := EditHistory{"x"}.Value()
	require.NoError(t, err)
	require.Equal(t, `["x"]`, v)

	v, err = EditHistory(nil).Value()
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestHistoryEntryJSON(t *testing.T) {
	entry := HistoryEntry{
		Message: Message{ID: 1, GroupID: 2, SenderID: 3, Content: strPtr("hi")},
		Sender:  PublicProfile{ID: 3, FullName: "Ada"},
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, []any{}, decoded["edit_history"])
	require.Equal(t, "hi", decoded["content"])
	require.Equal(t, "Ada", decoded["sender"].(map[string]any)["full_name"])
}

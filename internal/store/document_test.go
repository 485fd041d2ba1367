package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertUser_KeepsIdentityAndJoinedAt(t *testing.T) {
	doc := NewDocument()
	u, created, err := doc.UpsertUser(User{UserID: "1", Username: "a", JoinedAt: "2024-01-01T00:00:00"})
	require.NoError(t, err)
	require.True(t, created)

	u2, created, err := doc.UpsertUser(User{UserID: "1", Username: "b", JoinedAt: "2025-01-01T00:00:00"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, u, u2)
	assert.Equal(t, "b", u2.Username)
	assert.Equal(t, "2024-01-01T00:00:00", u2.JoinedAt)
}

func TestUpsertUser_StampsJoinedAtAndValidates(t *testing.T) {
	doc := NewDocument()
	u, _, err := doc.UpsertUser(User{UserID: "9"})
	require.NoError(t, err)
	assert.True(t, ValidTimestamp(u.JoinedAt))

	_, _, err = doc.UpsertUser(User{UserID: "10", JoinedAt: "yesterday"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "joined_at", verr.Field)

	_, _, err = doc.UpsertUser(User{})
	require.ErrorAs(t, err, &verr)
}

func TestRegisterDevice_RegisteredAtImmutable(t *testing.T) {
	doc := NewDocument()
	_, created, err := doc.RegisterDevice("d1", "u1", "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.True(t, created)

	dev, created, err := doc.RegisterDevice("d1", "u2", "2030-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "2024-01-01T00:00:00Z", dev.RegisteredAt)
	assert.Equal(t, "u2", dev.OwnerID)

	_, _, err = doc.RegisterDevice("d2", "", "not-a-time")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRecordUpload_OnlyMovesForward(t *testing.T) {
	doc := NewDocument()
	_, _, err := doc.RegisterDevice("d1", "", "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	_, err = doc.RecordUpload("d1", "2024-01-02T00:00:00Z")
	require.NoError(t, err)
	_, err = doc.RecordUpload("d1", "2024-01-02T00:00:00Z")
	require.NoError(t, err, "same instant is not a regression")

	_, err = doc.RecordUpload("d1", "2024-01-01T12:00:00Z")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "2024-01-02T00:00:00Z", *doc.Devices()["d1"].LastUpload)

	_, err = doc.RecordUpload("missing", "2024-01-03T00:00:00Z")
	require.ErrorAs(t, err, &verr)
}

func TestAppendMessage_OrderAndValidation(t *testing.T) {
	doc := NewDocument()
	for _, text := range []string{"a", "b", "c"} {
		_, err := doc.AppendMessage(Message{ChatID: "5", Text: text})
		require.NoError(t, err)
	}
	require.Len(t, doc.Messages(), 3)
	assert.Equal(t, "a", doc.Messages()[0].Text)
	assert.Equal(t, "c", doc.Messages()[2].Text)

	_, err := doc.AppendMessage(Message{ChatID: "5", Text: "x", Timestamp: "13/01/2024"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	_, err = doc.AppendMessage(Message{Text: "x"})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, doc.Messages(), 3)
}

func TestReplaceSettings_FullObjectWrite(t *testing.T) {
	doc := NewDocument()
	doc.ReplaceSettings(map[string]string{"a": "1", "b": "2"})
	in := map[string]string{"c": "3"}
	doc.ReplaceSettings(in)
	in["d"] = "4"
	assert.Equal(t, map[string]string{"c": "3"}, doc.Settings())
}

func TestPaginate(t *testing.T) {
	msgs := make([]*Message, 45)
	for i := range msgs {
		msgs[i] = &Message{ChatID: "1", Text: string(rune('A' + i%26))}
	}

	p1 := Paginate(msgs, 1, PerPage)
	require.Len(t, p1.Messages, 20)
	assert.Same(t, msgs[0], p1.Messages[0])
	assert.Same(t, msgs[19], p1.Messages[19])
	assert.Equal(t, 3, p1.TotalPages)

	p3 := Paginate(msgs, 3, PerPage)
	require.Len(t, p3.Messages, 5)
	assert.Same(t, msgs[40], p3.Messages[0])
	assert.Same(t, msgs[44], p3.Messages[4])

	p4 := Paginate(msgs, 4, PerPage)
	assert.NotNil(t, p4.Messages)
	assert.Empty(t, p4.Messages)

	p0 := Paginate(msgs, 0, 0)
	assert.Equal(t, 1, p0.Page)
	assert.Len(t, p0.Messages, 20)

	empty := Paginate(nil, 1, PerPage)
	assert.Equal(t, 0, empty.TotalPages)
	assert.Empty(t, empty.Messages)
}

func TestParseTimestamp_Layouts(t *testing.T) {
	for _, ok := range []string{
		"2024-03-01T10:00:00",
		"2024-03-01T10:00:00.123456",
		"2024-03-01 10:00:00",
		"2024-03-01T10:00:00+08:00",
		"2024-03-01T10:00:00.5Z",
		"2024-03-01",
	} {
		assert.True(t, ValidTimestamp(ok), ok)
	}
	for _, bad := range []string{"", "now", "2024-13-01", "01.03.2024"} {
		assert.False(t, ValidTimestamp(bad), bad)
	}
}

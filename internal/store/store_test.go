package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmptyAndNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db.json")
	s := NewFileStore(path)

	for i := 0; i < 3; i++ {
		doc, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, doc.Users())
		assert.Empty(t, doc.Devices())
		assert.Empty(t, doc.Messages())
		assert.Empty(t, doc.Settings())
		assert.Equal(t, NewDocument(), doc)
	}

	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist), "load must not create the backing file")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "db.json"))

	doc := NewDocument()
	_, _, err := doc.UpsertUser(User{UserID: "42", Username: "alice", JoinedAt: "2024-03-01T10:00:00"})
	require.NoError(t, err)
	_, _, err = doc.RegisterDevice("dev-1", "42", "2024-03-01T10:05:00+00:00")
	require.NoError(t, err)
	_, err = doc.RecordUpload("dev-1", "2024-03-02T08:00:00Z")
	require.NoError(t, err)
	_, _, err = doc.RegisterDevice("dev-2", "", "2024-03-03 09:00:00")
	require.NoError(t, err)
	_, err = doc.AppendMessage(Message{ChatID: "42", Text: "hello", Timestamp: "2024-03-01T10:00:01.123456", Direction: DirectionInbound})
	require.NoError(t, err)
	_, err = doc.AppendMessage(Message{ChatID: "group-x", Text: "second"})
	require.NoError(t, err)
	doc.ReplaceSettings(map[string]string{"welcome": "hi", "lang": "en"})

	require.NoError(t, s.Save(doc))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	// a second cycle of the loaded value is stable too
	require.NoError(t, s.Save(got))
	again, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestLoad_PreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	raw := `{
  "users": {"7": {"user_id": "7", "joined_at": "2024-01-01T00:00:00", "language_code": "de"}},
  "devices": {"d": {"registered_at": "2024-01-01T00:00:00", "last_upload": null, "model": {"v": 2}}},
  "messages": [{"chat_id": 7, "text": "x", "timestamp": "2024-01-01T00:00:01", "message_id": 99}],
  "settings": {"a": "b"},
  "schema": "v1"
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	s := NewFileStore(path)

	doc, err := s.Load()
	require.NoError(t, err)
	require.Contains(t, doc.Devices(), "d")
	assert.Equal(t, "d", doc.Devices()["d"].DeviceID)
	assert.Nil(t, doc.Devices()["d"].LastUpload)
	assert.Equal(t, ChatID("7"), doc.Messages()[0].ChatID)

	require.NoError(t, s.Save(doc))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"language_code": "de"`)
	assert.Contains(t, out, `"message_id": 99`)
	assert.Contains(t, out, `"schema": "v1"`)
	assert.Contains(t, out, `"chat_id": 7`)
	assert.Contains(t, out, `"last_upload": null`)
}

func TestLoad_CorruptFile(t *testing.T) {
	for name, content := range map[string]string{
		"syntax":    `{"users": {`,
		"empty":     ``,
		"array":     `[]`,
		"wrongtype": `{"messages": {"not": "a list"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			doc, err := NewFileStore(path).Load()
			require.Nil(t, doc)
			var corrupt *CorruptStoreError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, path, corrupt.Path)
			assert.NotNil(t, corrupt.Unwrap())
		})
	}
}

func TestLoad_NullCollectionsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users": null, "messages": null}`), 0o644))

	doc, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.NotNil(t, doc.Users())
	assert.NotNil(t, doc.Devices())
	assert.NotNil(t, doc.Messages())
	assert.NotNil(t, doc.Settings())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "db.json"))
	require.NoError(t, s.Save(NewDocument()))
	require.NoError(t, s.Save(NewDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "db.json", entries[0].Name())
}

func TestLoad_AcceptsNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	raw := `{
  "users": {"42": {"user_id": 42, "username": "alice", "joined_at": "2024-01-01T00:00:00"}},
  "devices": {"9": {"device_id": 9, "owner_id": 42, "registered_at": "2024-01-01T00:00:00", "last_upload": null}},
  "messages": [{"chat_id": 42, "user_id": 42, "text": "hi", "timestamp": "2024-01-01T00:00:01"}],
  "settings": {}
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	s := NewFileStore(path)

	doc, err := s.Load()
	require.NoError(t, err)
	require.Contains(t, doc.Users(), "42")
	assert.Equal(t, "42", doc.Users()["42"].UserID)
	assert.Equal(t, "9", doc.Devices()["9"].DeviceID)
	assert.Equal(t, "42", doc.Devices()["9"].OwnerID)
	assert.Equal(t, "42", doc.Messages()[0].UserID)

	_, _, err = doc.UpsertUser(User{UserID: "42", Username: "alice2"})
	require.NoError(t, err)
	_, err = doc.AppendMessage(Message{ChatID: "42", UserID: "42", Text: "new"})
	require.NoError(t, err)
	require.NoError(t, s.Save(doc))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"user_id": 42,`)
	assert.Contains(t, out, `"device_id": 9`)
	assert.Contains(t, out, `"owner_id": 42`)
	assert.Contains(t, out, `"username": "alice2"`)
	// records written by this service keep string user ids
	assert.Contains(t, out, `"user_id": "42"`)

	again, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestSave_KeepsStringChatID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	raw := `{"users": {}, "devices": {}, "messages": [{"chat_id": "123", "text": "a"}, {"chat_id": 77, "text": "b"}], "settings": {}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	s := NewFileStore(path)

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, ChatID("123"), doc.Messages()[0].ChatID)
	require.NoError(t, s.Save(doc))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"chat_id": "123"`)
	assert.Contains(t, out, `"chat_id": 77`)
	assert.NotContains(t, out, `"chat_id": 123`)
}

package database

import (
	"os"
	"testing"

	"flexchat/internal/migration"
	"flexchat/pkg/version"
	"flexchat/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDocument = `
[[comments]]
id = "7d1c8f0e-5b1a-4c55-8f3e-1a2b3c4d5e01"
name = "alice"
message = "hi"
`

func TestConnectCreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	s, err := Connect(dir, false)
	require.NoError(t, err)
	assert.Equal(t, store.FilePath(dir), s.Path())

	current, err := version.Current()
	require.NoError(t, err)
	stored, err := s.ReadVersionCode()
	require.NoError(t, err)
	assert.Equal(t, current, stored)
}

func TestConnectLegacyDatabase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(store.FilePath(dir), []byte(legacyDocument), 0o644))

	_, err := Connect(dir, false)
	assert.ErrorIs(t, err, store.ErrSchema)

	s, err := Connect(dir, true)
	require.NoError(t, err)
	doc, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, doc.Channels, 1)
	assert.Equal(t, migration.GeneralChannelName, doc.Channels[0].Name)
	require.Len(t, doc.Comments, 1)
	assert.Equal(t, doc.Channels[0].ID, doc.Comments[0].ChannelID)
}

func TestMigrateMissingDatabase(t *testing.T) {
	_, err := Migrate(t.TempDir())
	assert.ErrorIs(t, err, store.ErrIO)
}

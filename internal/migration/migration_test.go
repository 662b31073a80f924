package migration

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"flexchat/pkg/version"
	"flexchat/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDocument = `
[[comments]]
id = "0b4b2b4e-3c76-4f0e-9a57-7f0d8f3b1a01"
name = "alice"
message = "first"

[[comments]]
id = "0b4b2b4e-3c76-4f0e-9a57-7f0d8f3b1a02"
name = "bob"
message = "second"

[[comments]]
id = "0b4b2b4e-3c76-4f0e-9a57-7f0d8f3b1a03"
name = "alice"
message = "third"
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), store.FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func code(s string) uint64 {
	return version.Encode(version.MustParse(s), 0)
}

func TestMigrate030(t *testing.T) {
	path := writeFile(t, "version-code = "+formatCode(code("0.2.0"))+"\n"+legacyDocument)

	runner, err := NewRunner(code("0.3.0"), Steps())
	require.NoError(t, err)
	applied, err := runner.Run(path)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	s, err := store.Open(path, code("0.3.0"))
	require.NoError(t, err)
	doc, err := s.ReadAll()
	require.NoError(t, err)

	require.Len(t, doc.Channels, 1)
	general := doc.Channels[0]
	assert.Equal(t, GeneralChannelName, general.Name)
	require.Len(t, doc.Comments, 3)
	for _, c := range doc.Comments {
		assert.Equal(t, general.ID, c.ChannelID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, []string{doc.Comments[0].Message, doc.Comments[1].Message, doc.Comments[2].Message})
	require.NoError(t, doc.Validate())

	// A second run is gated by the stored version and adds nothing.
	applied, err = runner.Run(path)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	doc, err = s.ReadAll()
	require.NoError(t, err)
	require.Len(t, doc.Channels, 1)
	assert.Equal(t, general.ID, doc.Channels[0].ID)
}

func TestMissingVersionCodeIsLegacy(t *testing.T) {
	path := writeFile(t, legacyDocument)

	runner, err := NewRunner(code("0.3.0"), Steps())
	require.NoError(t, err)
	applied, err := runner.Run(path)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	stored, err := store.ReadVersionCode(path)
	require.NoError(t, err)
	assert.Equal(t, code("0.3.0"), stored)
}

func TestMigrateEmptyLegacyDocument(t *testing.T) {
	path := writeFile(t, "version-code = "+formatCode(code("0.2.0"))+"\ncomments = []\n")

	runner, err := NewRunner(code("0.3.0"), Steps())
	require.NoError(t, err)
	_, err = runner.Run(path)
	require.NoError(t, err)

	s, err := store.Open(path, code("0.3.0"))
	require.NoError(t, err)
	doc, err := s.ReadAll()
	require.NoError(t, err)
	assert.Len(t, doc.Channels, 1)
	assert.Empty(t, doc.Comments)
}

func TestStampsCurrentVersion(t *testing.T) {
	path := writeFile(t, "version-code = "+formatCode(code("0.2.0"))+"\n"+legacyDocument)
	current := version.Encode(version.MustParse("0.4.1"), 2)

	runner, err := NewRunner(current, Steps())
	require.NoError(t, err)
	_, err = runner.Run(path)
	require.NoError(t, err)

	stored, err := store.ReadVersionCode(path)
	require.NoError(t, err)
	assert.Equal(t, current, stored)
}

func TestRefusesNewerDatabase(t *testing.T) {
	path := writeFile(t, "version-code = "+formatCode(code("0.9.0"))+"\n")

	runner, err := NewRunner(code("0.3.0"), Steps())
	require.NoError(t, err)
	_, err = runner.Run(path)
	assert.ErrorIs(t, err, store.ErrSchemaVersion)
}

func TestRefusesStaleBinary(t *testing.T) {
	path := writeFile(t, legacyDocument)

	runner, err := NewRunner(code("0.2.0"), Steps())
	require.NoError(t, err)
	_, err = runner.Run(path)
	assert.ErrorIs(t, err, ErrStaleBinary)

	// Nothing was touched.
	_, err = store.ReadVersionCode(path)
	assert.ErrorIs(t, err, store.ErrSchema)
}

func TestMalformedVersionCodeIsNotLegacy(t *testing.T) {
	content := `version-code = "0.3.0"

[[channels]]
id = "5f0e6c1a-2b3d-4e5f-8a9b-0c1d2e3f4a01"
name = "Ops"

[[comments]]
id = "5f0e6c1a-2b3d-4e5f-8a9b-0c1d2e3f4a02"
channel-id = "5f0e6c1a-2b3d-4e5f-8a9b-0c1d2e3f4a01"
name = "alice"
message = "deploy done"
`
	path := writeFile(t, content)

	runner, err := NewRunner(code("0.3.0"), Steps())
	require.NoError(t, err)
	applied, err := runner.Run(path)
	assert.ErrorIs(t, err, store.ErrParse)
	assert.Equal(t, 0, applied)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(after))
}

func TestStepsRunInOrder(t *testing.T) {
	path := writeFile(t, "version-code = "+formatCode(code("0.1.0"))+"\n")

	var ran []string
	step := func(name string) Step {
		return Step{Target: code(name), Name: name, Apply: func(string) error {
			ran = append(ran, name)
			return nil
		}}
	}
	runner, err := NewRunner(code("0.5.0"), []Step{step("0.1.0"), step("0.2.0"), step("0.4.0")})
	require.NoError(t, err)
	applied, err := runner.Run(path)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, []string{"0.2.0", "0.4.0"}, ran)

	_, err = NewRunner(code("0.5.0"), []Step{step("0.4.0"), step("0.2.0")})
	assert.Error(t, err)
}

func formatCode(c uint64) string {
	return strconv.FormatUint(c, 10)
}

package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exif-turbo/exifturbo/internal/store"
	"github.com/exif-turbo/exifturbo/pkg/version"
)

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_Text(t *testing.T) {
	out, err := runVersion(t)

	require.NoError(t, err)
	assert.Contains(t, out, "exifturbo "+version.Version)
	assert.Contains(t, out, "index schema 1")
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := runVersion(t, "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSON(t *testing.T) {
	// Given: --json
	out, err := runVersion(t, "--json")
	require.NoError(t, err)

	// Then: build fields sit next to the schema version
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, version.Version, got["version"])
	assert.EqualValues(t, store.SchemaVersion, got["index_schema"])
	assert.Contains(t, got, "platform")
}

func TestVersionCmd_FlagsExclusive(t *testing.T) {
	_, err := runVersion(t, "--json", "--short")

	assert.Error(t, err)
}

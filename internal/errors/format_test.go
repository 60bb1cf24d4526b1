package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := StoreError(ErrCodeStoreOpen, "open /tmp/x.db", nil).WithSuggestion("check permissions")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: open /tmp/x.db")
	assert.Contains(t, out, "Hint: check permissions")
	assert.Contains(t, out, "Code: ERR_204_STORE_OPEN")
}

func TestFormatForCLI_QuerySyntaxShowsCaret(t *testing.T) {
	out := FormatForCLI(NewQuerySyntaxError("a AND", 2, "AND needs a right operand"))

	assert.Contains(t, out, "  a AND\n    ^\n")
}

func TestFormatForCLI_WrapsForeignErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeExtractTimeout, "took too long", errors.New("deadline")).WithDetail("path", "/a.jpg")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeExtractTimeout, got["code"])
	assert.Equal(t, "EXTRACTION", got["category"])
	assert.Equal(t, true, got["retryable"])
	assert.Equal(t, "deadline", got["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeStoreBusy, "busy", nil).WithDetail("db", "x.db"))

	keys := map[string]string{}
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, ErrCodeStoreBusy, keys["error_code"])
	assert.Equal(t, "x.db", keys["detail_db"])

	assert.Len(t, LogAttrs(errors.New("plain")), 1)
	assert.Nil(t, LogAttrs(nil))
}

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFormat(t *testing.T) {
	require.NoError(t, ValidateFormat("logfmt"))
	require.NoError(t, ValidateFormat("json"))
	require.Error(t, ValidateFormat("text"))
}

func TestWriterLogger_Logfmt(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWriterLogger(buf, FormatLogfmt, false, "component", "test")

	logger.Info("enumeration finished", "records", 3)
	logger.Debug("not printed")

	out := buf.String()
	assert.Contains(t, out, "level=info")
	assert.Contains(t, out, `msg="enumeration finished"`)
	assert.Contains(t, out, "records=3")
	assert.Contains(t, out, "component=test")
	assert.NotContains(t, out, "not printed")
}

func TestWriterLogger_JSONWithDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWriterLogger(buf, FormatJSON, true).With("parent", "cluster-a")
	require.True(t, logger.IsDebugEnabled())

	logger.Debug("describe chunk", "size", 10)
	logger.Error(errors.New("boom"), "describe failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "cluster-a", first["parent"])
	assert.Equal(t, "describe chunk", first["msg"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "boom", second["err"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.False(t, logger.IsDebugEnabled())
	logger.With("k", "v").Warn("nothing happens")
}

package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogWritesLine(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "transaction")
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("0xabc", "accepting deposit"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(content), "[TX]")
	require.Contains(t, string(content), "0xabc")
	require.Contains(t, string(content), "accepting deposit")
}

func TestLogAppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "transaction")
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("0x1", "first"))
	require.NoError(t, logger.Log("0x2", "second"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(content), "[TX]"))
}

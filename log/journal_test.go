package log

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJournalAppendAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := NewJournal(path, 0)
	require.NoError(t, err)

	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	j.Append("collection skipped", zap.Uint32("boot_count", 4))
	j.Error("network bring-up failed", zap.String("phase", "PRE_NETWORK_B"))

	entries, err = j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0], "INFO")
	assert.Contains(t, entries[0], "collection skipped")
	assert.Contains(t, entries[0], `"boot_count": 4`)
	assert.Contains(t, entries[1], "ERROR")

	// a second handle sees the same durable content
	reopened, err := NewJournal(path, 0)
	require.NoError(t, err)
	again, err := reopened.Entries()
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	require.NoError(t, j.Clear())
	entries, err = j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalIsBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := NewJournal(path, 1024)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		j.Append(strings.Repeat("x", 40), zap.Int("i", i))
	}

	entries, err := j.Entries()
	require.NoError(t, err)
	total := 0
	for _, e := range entries {
		total += len(e) + 1
	}
	assert.LessOrEqual(t, total, 1024+64)
	assert.Contains(t, entries[len(entries)-1], `"i": 99`)
}

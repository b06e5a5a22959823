package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateGlobalStore(t *testing.T) {
	t.Helper()
	t.Setenv("STATS_DB_PATH", filepath.Join(t.TempDir(), "stats.db"))
	ResetForTesting()
	t.Cleanup(ResetForTesting)
}

func TestRecordInvocationOpensStoreLazily(t *testing.T) {
	isolateGlobalStore(t)

	RecordInvocation(ModeSearch)
	RecordInvocation(ModeSearch)
	RecordInvocation(ModeCLI)

	totals := GetStatsByName()
	require.NotNil(t, totals)
	assert.EqualValues(t, 2, totals["search"])
	assert.EqualValues(t, 1, totals["cli"])
	assert.EqualValues(t, 0, totals["health"])
}

func TestGetStatsWithoutStore(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	assert.Nil(t, GetStats())
	assert.Nil(t, GetStatsByName())
}

func TestCloseAllowsReopen(t *testing.T) {
	isolateGlobalStore(t)

	require.NoError(t, Init())
	RecordInvocation(ModeModels)
	require.NoError(t, Close())

	// Counts persist across close and reopen of the same database.
	require.NoError(t, Init())
	RecordInvocation(ModeModels)

	totals := GetStatsByName()
	require.NotNil(t, totals)
	assert.EqualValues(t, 2, totals["models"])
}

func TestSetStoreForTestingRoutesRecording(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	store, err := NewStoreWithPath(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	SetStoreForTesting(store)

	RecordInvocation(ModeHealth)

	today := time.Now().Format("2006-01-02")
	count, err := store.GetCountByDate(ModeHealth, today)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

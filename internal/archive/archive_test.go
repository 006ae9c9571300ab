package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestArchive_RunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.BeginRun("run-1", 2, true, 5, 0.04))
	require.NoError(t, db.FinishRun("run-1", 1.25e-3))

	run, err := db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, run.NFP)
	assert.True(t, run.StellSym)
	assert.Equal(t, 5, run.NumCoils)
	assert.InDelta(t, 0.04, run.CoilRadius, 1e-15)
	require.NotNil(t, run.FinalLoss)
	assert.InDelta(t, 1.25e-3, *run.FinalLoss, 1e-15)
	require.NotNil(t, run.FinishedAt)
}

func TestArchive_LossHistoryReplaces(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.BeginRun("run-1", 1, false, 2, 0.1))

	require.NoError(t, db.SaveLossHistory("run-1", []float64{3, 2, 1}))
	require.NoError(t, db.SaveLossHistory("run-1", []float64{0.5, 0.25}))

	losses, err := db.LossHistory("run-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, losses)
}

func TestArchive_CoilsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.BeginRun("run-1", 1, false, 2, 0.1))

	coils := []Coil{
		{RunID: "run-1", Coil: 0, CX: 1.4, CZ: 0.3, Alpha: 0.2, Delta: -0.5, Current: -120.5},
		{RunID: "run-1", Coil: 1, CX: -1.4, CZ: 0.3, Alpha: -0.1, Delta: 0.8, Current: 45.0},
	}
	require.NoError(t, db.SaveCoils("run-1", coils))

	got, err := db.Coils("run-1")
	require.NoError(t, err)
	assert.Equal(t, coils, got)
}

func TestArchive_GetMissingRunFails(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("nope")
	assert.Error(t, err)
}

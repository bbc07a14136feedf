package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/convergence"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *experiment.Result {
	states := []dynamo.EvolutionState{
		{Time: 0, State: dynamo.State{0.5, 0.25}, Regime: dynamo.RegimeStable},
		{Time: 0.05, State: dynamo.State{0.1, 0.3}, Regime: dynamo.RegimeCrisis},
		{Time: 0.1, State: dynamo.State{0.123456789, 1}, Regime: dynamo.RegimeTrending},
	}
	return &experiment.Result{
		Names:   []string{"a", "b"},
		States:  states,
		Stats:   convergence.Stats{TotalSteps: 2, FirstConverged: -1},
		Metrics: map[string]float64{"clamp_rate": 0.5},
		Regimes: analysis.SummarizeRegimes(states),
		Ito:     0.25,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runID, err := st.Save(RunMetadata{Preset: "reference", Seed: 42, Dt: 0.05, Noise: "gaussian"}, sampleResult())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "reference", meta.Preset)
	assert.Equal(t, int64(42), meta.Seed)
	assert.Equal(t, 0.5, meta.Metrics["clamp_rate"])
	assert.Equal(t, 2, meta.Steps)
	assert.Equal(t, []string{"a", "b"}, meta.Names)
	assert.InDelta(t, 1.0/3, meta.Occupancy["crisis"], 1e-12)
	assert.Equal(t, 0.25, meta.Ito)

	states, names, err := st.LoadStates(runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	require.Len(t, states, 3)
	assert.Equal(t, sampleResult().States, states)
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	first, err := st.Save(RunMetadata{Preset: "calm"}, sampleResult())
	require.NoError(t, err)
	second, err := st.Save(RunMetadata{}, sampleResult())
	require.NoError(t, err)

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Init())

	runID, err := st.Save(RunMetadata{Preset: "reference"}, sampleResult())
	require.NoError(t, err)

	for _, name := range []string{"metadata.json", "states.csv"} {
		_, err := os.Stat(filepath.Join(dir, runID, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, runID, "states.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "time,regime,a,b\n0,stable,0.5,0.25\n")
}

func TestLoadStatesRejectsShortRow(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	runDir := filepath.Join(dir, "broken")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "states.csv"), []byte("time,regime,a\n0,stable\n"), 0644))

	_, _, err := st.LoadStates("broken")
	assert.Error(t, err)
}

func TestExportRun(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())
	runID, err := st.Save(RunMetadata{Preset: "reference"}, sampleResult())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.ExportRun(&buf, runID))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, runID, data.Run.ID)
	assert.Equal(t, []float64{0, 0.05, 0.1}, data.Times)
	assert.Equal(t, []string{"stable", "crisis", "trending"}, data.Regimes)
	assert.Equal(t, []float64{0.1, 0.3}, data.States[1])
}

func TestExportRunMissing(t *testing.T) {
	st := New(t.TempDir())
	assert.Error(t, st.ExportRun(&bytes.Buffer{}, "nope"))
}

func TestMetadataFor(t *testing.T) {
	cfg := config.GetPreset("calm")
	meta := MetadataFor(cfg)

	assert.Equal(t, "calm", meta.Preset)
	assert.Equal(t, cfg.Seed, meta.Seed)
	assert.Equal(t, *cfg.Dt, meta.Dt)
	assert.Equal(t, *cfg.Convergence.Threshold, meta.Threshold)
	assert.Equal(t, cfg.ConditionIndex(), meta.Condition)
	assert.Equal(t, "antithetic", meta.Noise)
}

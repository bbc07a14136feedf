// Package storage persists finished runs as a directory per run holding
// metadata.json and states.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/convergence"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/experiment"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string    `json:"id"`
	Preset    string    `json:"preset"`
	Timestamp time.Time `json:"timestamp"`
	Seed      int64     `json:"seed"`
	Dt        float64   `json:"dt"`
	Duration  float64   `json:"duration"`
	Noise     string    `json:"noise"`
	Loss      string    `json:"loss"`
	Threshold float64   `json:"threshold"`
	Names     []string  `json:"names"`
	Condition int       `json:"condition"`
	Steps     int       `json:"steps"`

	Metrics   map[string]float64 `json:"metrics"`
	Stats     convergence.Stats  `json:"stats"`
	Occupancy map[string]float64 `json:"occupancy"`
	Ito       float64            `json:"ito"`
	ItoExact  float64            `json:"ito_exact"`
}

// MetadataFor fills the config-derived fields of a run's metadata.
func MetadataFor(cfg *config.Config) RunMetadata {
	meta := RunMetadata{
		Preset:    cfg.Name,
		Seed:      cfg.Seed,
		Duration:  cfg.Duration,
		Noise:     cfg.Noise,
		Loss:      cfg.Convergence.Loss,
		Condition: cfg.ConditionIndex(),
	}
	if cfg.Dt != nil {
		meta.Dt = *cfg.Dt
	}
	if cfg.Convergence.Threshold != nil {
		meta.Threshold = *cfg.Convergence.Threshold
	}
	return meta
}

// Save writes a run and returns its id. meta.ID, Timestamp, Names, Steps,
// Metrics, Stats, Occupancy and the integrals are filled from res.
func (s *Store) Save(meta RunMetadata, res *experiment.Result) (string, error) {
	now := time.Now()
	name := meta.Preset
	if name == "" {
		name = "custom"
	}
	meta.ID = fmt.Sprintf("%s_%d", name, now.UnixNano())
	meta.Timestamp = now
	meta.Names = res.Names
	meta.Steps = res.Stats.TotalSteps
	meta.Metrics = res.Metrics
	meta.Stats = res.Stats
	meta.Ito = res.Ito
	meta.ItoExact = res.ItoExact
	meta.Occupancy = make(map[string]float64, len(res.Regimes.Occupancy))
	for r, v := range res.Regimes.Occupancy {
		meta.Occupancy[r.String()] = v
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, "states.csv"), res.Names, res.States); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, names []string, states []dynamo.EvolutionState) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time", "regime"}, names...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range states {
		row := make([]string, 0, len(s.State)+2)
		row = append(row, strconv.FormatFloat(s.Time, 'g', -1, 64), s.Regime.String())
		for _, v := range s.State {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadStates reads states.csv back. Volatility is not stored and is left nil.
func (s *Store) LoadStates(runID string) ([]dynamo.EvolutionState, []string, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return []dynamo.EvolutionState{}, nil, nil
	}

	names := records[0][2:]
	states := make([]dynamo.EvolutionState, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(names)+2 {
			return nil, nil, fmt.Errorf("states.csv line %d: expected %d fields, got %d", i+2, len(names)+2, len(record))
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("states.csv line %d: %w", i+2, err)
		}
		state := make(dynamo.State, len(names))
		for j, field := range record[2:] {
			if state[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, nil, fmt.Errorf("states.csv line %d: %w", i+2, err)
			}
		}
		states = append(states, dynamo.EvolutionState{
			Time:   t,
			State:  state,
			Regime: parseRegime(record[1]),
		})
	}
	return states, names, nil
}

func parseRegime(s string) dynamo.Regime {
	for _, r := range dynamo.Regimes {
		if r.String() == s {
			return r
		}
	}
	return dynamo.RegimeUnknown
}

package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/stochsim/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata `json:"run"`
	Times   []float64   `json:"times"`
	Regimes []string    `json:"regimes"`
	States  [][]float64 `json:"states"`
}

// ExportJSON writes a run and its states as one indented JSON document.
func ExportJSON(w io.Writer, meta *RunMetadata, states []dynamo.EvolutionState) error {
	data := ExportData{
		Run:     *meta,
		Times:   make([]float64, len(states)),
		Regimes: make([]string, len(states)),
		States:  make([][]float64, len(states)),
	}
	for i, s := range states {
		data.Times[i] = s.Time
		data.Regimes[i] = s.Regime.String()
		data.States[i] = s.State
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportRun loads a stored run and writes it with ExportJSON.
func (s *Store) ExportRun(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	return ExportJSON(w, meta, states)
}

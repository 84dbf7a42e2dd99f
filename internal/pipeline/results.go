package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// EntryJSON is the serialized form of one recognized line.
type EntryJSON struct {
	Index      int          `json:"index"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Box        [4][2]float64 `json:"box"`
}

// ResultJSON is the serialized form of one task result.
type ResultJSON struct {
	Results    []EntryJSON `json:"results"`
	TotalCount int         `json:"total_count"`
}

// ToJSON serializes the result entries.
func (r *TaskResult) ToJSON() ([]byte, error) {
	out := ResultJSON{Results: make([]EntryJSON, 0, len(r.Entries))}
	for _, e := range r.Entries {
		ej := EntryJSON{Index: e.Index, Text: e.Text, Confidence: e.Confidence}
		for i, p := range e.Quad {
			ej.Box[i] = [2]float64{p.X, p.Y}
		}
		out.Results = append(out.Results, ej)
	}
	out.TotalCount = len(out.Results)
	return json.MarshalIndent(out, "", "  ")
}

// SaveJSON writes the result entries to path.
func (r *TaskResult) SaveJSON(path string) error {
	data, err := r.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

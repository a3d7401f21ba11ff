package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Problem  string             `json:"problem"`
	Scheme   string             `json:"scheme"`
	Steps    int                `json:"steps"`
	Time     float64            `json:"time"`
	Times    []float64          `json:"times,omitempty"`
	Dts      []float64          `json:"dts,omitempty"`
	ResNorms []float64          `json:"res_norms,omitempty"`
	State    []float64          `json:"state"`
	Outputs  map[string]float64 `json:"outputs,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

// WriteJSON encodes data indented. Non-finite outputs and metrics are
// left out.
func WriteJSON(w io.Writer, data *ExportData) error {
	clean := *data
	clean.Outputs = finite(data.Outputs)
	clean.Metrics = finite(data.Metrics)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&clean)
}

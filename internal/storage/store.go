package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
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
	ID        string             `json:"id"`
	Problem   string             `json:"problem"`
	Scheme    string             `json:"scheme"`
	Timestamp time.Time          `json:"timestamp"`
	Steady    bool               `json:"steady"`
	Dt        float64            `json:"dt"`
	TFinal    float64            `json:"t_final"`
	Steps     int                `json:"steps"`
	Time      float64            `json:"time"`
	Reason    string             `json:"reason,omitempty"`
	ResNorm   float64            `json:"res_norm"`
	Inputs    map[string]float64 `json:"inputs,omitempty"`
	Outputs   map[string]float64 `json:"outputs,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// NewRunID names a run after its problem and the current time.
func NewRunID(problem string) string {
	return fmt.Sprintf("%s_%d", problem, time.Now().UnixNano())
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// SaveMetadata writes metadata.json into the run directory, creating it
// when needed. An empty ID is filled in.
func (s *Store) SaveMetadata(meta *RunMetadata) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID(meta.Problem)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := s.runDir(meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	// json has no NaN or Inf
	clean := *meta
	clean.Inputs = finite(meta.Inputs)
	clean.Outputs = finite(meta.Outputs)
	clean.Metrics = finite(meta.Metrics)
	if math.IsNaN(clean.ResNorm) || math.IsInf(clean.ResNorm, 0) {
		clean.ResNorm = -1
	}

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&clean); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// Save writes the metadata and the full state history of a run.
func (s *Store) Save(meta *RunMetadata, times []float64, states [][]float64) (string, error) {
	runID, err := s.SaveMetadata(meta)
	if err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(s.runDir(runID), "states.csv"))
	if err != nil {
		return "", err
	}
	if err := writeStates(f, times, states); err != nil {
		f.Close()
		return "", err
	}
	return runID, f.Close()
}

func writeStates(dst io.Writer, times []float64, states [][]float64) error {
	if len(states) == 0 {
		return nil
	}
	w := csv.NewWriter(dst)
	if err := w.Write(header(len(states[0]))); err != nil {
		return err
	}
	for i := range states {
		if err := w.Write(row(times[i], states[i])); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// finite drops NaN and Inf entries.
func finite(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

func header(n int) []string {
	h := []string{"time"}
	for i := 0; i < n; i++ {
		h = append(h, fmt.Sprintf("u%d", i))
	}
	return h
}

func row(t float64, state []float64) []string {
	r := []string{strconv.FormatFloat(t, 'g', -1, 64)}
	for _, val := range state {
		r = append(r, strconv.FormatFloat(val, 'g', -1, 64))
	}
	return r
}

// List returns the metadata of every stored run, oldest first.
// Directories without readable metadata are not runs and are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	paths, err := filepath.Glob(filepath.Join(s.baseDir, "*", "metadata.json"))
	if err != nil {
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(paths))
	for _, p := range paths {
		meta, err := readMetadata(p)
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	return readMetadata(filepath.Join(s.runDir(runID), "metadata.json"))
}

func readMetadata(path string) (*RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta := new(RunMetadata)
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return meta, nil
}

// LoadStates reads the state trajectory of a run. Rows must be numeric;
// the first malformed value fails the load with its line number.
func (s *Store) LoadStates(runID string) (states [][]float64, times []float64, err error) {
	path := filepath.Join(s.runDir(runID), "states.csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return [][]float64{}, []float64{}, nil
		}
		return nil, nil, fmt.Errorf("%s: header: %w", path, err)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		line, _ := r.FieldPos(0)

		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: column %d: %w", path, line, j+1, err)
			}
			row[j] = v
		}
		times = append(times, row[0])
		states = append(states, row[1:])
	}
	if times == nil {
		return [][]float64{}, []float64{}, nil
	}
	return states, times, nil
}

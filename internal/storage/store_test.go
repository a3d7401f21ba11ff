package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/multiphys/internal/sim"
)

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := &RunMetadata{
		Problem: "heat",
		Scheme:  "PTC",
		Steady:  true,
		Dt:      1e-3,
		Steps:   45,
		Reason:  "steady",
		Outputs: map[string]float64{"average": 0.75},
		Metrics: map[string]float64{"residual_drop": 11.5},
	}
	states := [][]float64{{1, 0, 0.5}, {1, 0.25, 0.5}}
	times := []float64{0, 0.001}

	runID, err := st.Save(meta, times, states)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if runID == "" {
		t.Error("expected non-empty run id")
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Problem != "heat" {
		t.Errorf("expected problem 'heat', got '%s'", loaded.Problem)
	}

	if loaded.Steps != 45 || !loaded.Steady {
		t.Errorf("expected 45 steady steps, got %d steady=%v", loaded.Steps, loaded.Steady)
	}

	if loaded.Outputs["average"] != 0.75 {
		t.Errorf("expected average 0.75, got %f", loaded.Outputs["average"])
	}

	gotStates, gotTimes, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}

	if len(gotStates) != 2 || len(gotTimes) != 2 {
		t.Fatalf("expected 2 states, got %d states and %d times", len(gotStates), len(gotTimes))
	}

	if gotStates[1][1] != 0.25 || gotTimes[1] != 0.001 {
		t.Errorf("state round trip lost precision: %v at %v", gotStates[1], gotTimes[1])
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range []string{"heat", "decay"} {
		meta := &RunMetadata{ID: p + "_run", Problem: p, Timestamp: base.Add(-time.Duration(i) * time.Hour)}
		if _, err := st.Save(meta, nil, nil); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	// stray files are not runs
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Problem != "decay" || runs[1].Problem != "heat" {
		t.Errorf("expected oldest run first, got %s then %s", runs[0].Problem, runs[1].Problem)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "missing"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

type halving struct{}

func (halving) Step(_ context.Context, state []float64, t, dt float64) (float64, error) {
	for i := range state {
		state[i] *= 0.5
	}
	return t + dt, nil
}

func (halving) Name() string { return "halving" }

func TestStateLoggerHooks(t *testing.T) {
	st := New(t.TempDir())
	runID := NewRunID("decay")

	logger, err := st.NewStateLogger(runID, 0, 3)
	if err != nil {
		t.Fatalf("logger failed: %v", err)
	}

	s := sim.New(halving{}, sim.WithHooks(logger.Hooks()))
	if _, err := s.Run(context.Background(), []float64{1, 2}, sim.Config{Dt: 0.25, TFinal: 1, MaxSteps: 10}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}

	// initial, step 3, final step 4
	want := []float64{0, 0.75, 1}
	if len(times) != len(want) {
		t.Fatalf("expected times %v, got %v", want, times)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("time %d: expected %v, got %v", i, want[i], times[i])
		}
	}
	if last := states[len(states)-1]; last[0] != 1.0/16 || last[1] != 2.0/16 {
		t.Errorf("expected final state [0.0625 0.125], got %v", last)
	}
}

func TestExportJSON(t *testing.T) {
	data := &ExportData{
		Problem: "decay",
		Scheme:  "RK4",
		Steps:   100,
		Time:    1,
		State:   []float64{0.3679},
		Outputs: map[string]float64{"average": 0.3679},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Steps != 100 || got.Scheme != "RK4" {
		t.Errorf("unexpected export %+v", got)
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := ExportJSON(path, data); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected export file: %v", err)
	}
}

func TestLoadStatesMalformed(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.SaveMetadata(&RunMetadata{Problem: "heat"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data := "time,u0\n0,1\n0.5,oops\n"
	if err := os.WriteFile(filepath.Join(st.runDir(runID), "states.csv"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err = st.LoadStates(runID)
	if err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if !strings.Contains(err.Error(), ":3: column 2") {
		t.Errorf("expected line and column in error, got %v", err)
	}
}

func TestSaveMetadataNonFinite(t *testing.T) {
	st := New(t.TempDir())
	meta := &RunMetadata{
		Problem: "decay",
		ResNorm: math.NaN(),
		Metrics: map[string]float64{"residual_drop": math.Inf(1), "mean_dt": 0.1},
	}
	runID, err := st.SaveMetadata(meta)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := loaded.Metrics["residual_drop"]; ok {
		t.Error("expected infinite metric to be dropped")
	}
	if loaded.Metrics["mean_dt"] != 0.1 || loaded.ResNorm != -1 {
		t.Errorf("unexpected metadata %+v", loaded)
	}
	if !math.IsInf(meta.Metrics["residual_drop"], 1) {
		t.Error("caller's metrics were modified")
	}
}

package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/experiment"
	"github.com/san-kum/multiphys/internal/models"
)

func heatNewton() *config.Config {
	cfg := config.GetPreset("heat", "steady")
	cfg.TimeDis.Type = "NEWTON"
	cfg.NonlinSolver.PrintLevel = 0
	return cfg
}

func builder(base *config.Config) BuildFunc {
	reg := experiment.NewRegistry()
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for k, v := range params {
			cfg.Inputs[k] = v
		}
		return reg.Build(cfg)
	}
}

func TestGridPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4, 5}})
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[1]["a"] != 1 || points[1]["b"] != 4 {
		t.Errorf("expected last parameter to vary fastest, got %v", points[1])
	}
}

func TestGridSearchHeatSource(t *testing.T) {
	g := NewGridSearch([]string{models.HeatSource}, [][]float64{{8, 2, 5}})
	g.Workers = 2

	best, val, points, err := g.Search(context.Background(), builder(heatNewton()), "average")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if best[models.HeatSource] != 2 {
		t.Errorf("expected the smallest source to win, got %v", best)
	}
	for _, p := range points {
		if p.Err != nil {
			t.Errorf("point %v failed: %v", p.Params, p.Err)
		}
		if p.Value < val {
			t.Errorf("point %v below best %f", p.Params, val)
		}
	}
}

func TestGridSearchAllFail(t *testing.T) {
	g := NewGridSearch([]string{models.HeatSource}, [][]float64{{1}})
	_, _, _, err := g.Search(context.Background(), builder(heatNewton()), "entropy")
	if err == nil {
		t.Error("expected error when no point succeeds")
	}
}

func TestMatchRecoversHeatSource(t *testing.T) {
	reg := experiment.NewRegistry()

	ref, err := reg.Build(heatNewton())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ref.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	values, err := ref.Outputs()
	if err != nil {
		t.Fatal(err)
	}

	cfg := heatNewton()
	cfg.Inputs[models.HeatSource] = 6
	exp, err := reg.Build(cfg)
	if err != nil {
		t.Fatal(err)
	}

	m := &Match{Output: "average", Param: models.HeatSource, Target: values["average"], Tol: 1e-9, MaxIter: 20}
	result, err := m.Run(context.Background(), exp)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if math.Abs(result.Param-10) > 1e-5 {
		t.Errorf("expected heat source 10, got %f", result.Param)
	}
	if result.Iterations < 2 || len(result.History) != result.Iterations {
		t.Errorf("unexpected history %+v", result)
	}
}

func TestMatchGivesUp(t *testing.T) {
	exp, err := experiment.NewRegistry().Build(heatNewton())
	if err != nil {
		t.Fatal(err)
	}
	m := &Match{Output: "average", Param: models.HeatSource, Target: 100, Tol: 1e-12, MaxIter: 2, MaxStep: 0.1}
	_, err = m.Run(context.Background(), exp)
	if !errors.Is(err, ErrNotConverged) {
		t.Errorf("expected ErrNotConverged, got %v", err)
	}
}

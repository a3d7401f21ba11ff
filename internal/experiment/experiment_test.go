package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/models"
)

func TestRegistryLists(t *testing.T) {
	r := NewRegistry()
	problems := r.ListProblems()
	want := []string{"decay", "heat", "joule", "linear"}
	if len(problems) != len(want) {
		t.Fatalf("expected %v, got %v", want, problems)
	}
	for i := range want {
		if problems[i] != want[i] {
			t.Errorf("expected %s at %d, got %s", want[i], i, problems[i])
		}
	}
	if len(r.ListOutputs()) != 3 {
		t.Errorf("expected 3 outputs, got %v", r.ListOutputs())
	}
	if _, err := r.GetProblem("plasma"); err == nil {
		t.Error("expected error for unknown problem")
	}
}

func TestEveryPresetBuilds(t *testing.T) {
	r := NewRegistry()
	for _, problem := range config.Problems() {
		for _, name := range config.ListPresets(problem) {
			t.Run(problem+"/"+name, func(t *testing.T) {
				e, err := r.Build(config.GetPreset(problem, name))
				if err != nil {
					t.Fatalf("build failed: %v", err)
				}
				if len(e.State()) != e.Problem().Residual.Size() {
					t.Errorf("state has %d entries, residual %d", len(e.State()), e.Problem().Residual.Size())
				}
				if len(e.Solver().Outputs()) != len(e.Config().Outputs) {
					t.Errorf("expected %d outputs, got %v", len(e.Config().Outputs), e.Solver().Outputs())
				}
			})
		}
	}
}

func TestBuildRejectsUnknownNames(t *testing.T) {
	r := NewRegistry()

	cfg := config.GetPreset("linear", "newton")
	cfg.Problem = "plasma"
	if _, err := r.Build(cfg); err == nil {
		t.Error("expected error for unknown problem")
	}

	cfg = config.GetPreset("linear", "newton")
	cfg.Outputs = map[string]config.Options{"entropy": nil}
	if _, err := r.Build(cfg); err == nil {
		t.Error("expected error for unknown output")
	}
}

func TestRunDecay(t *testing.T) {
	e, err := NewRegistry().Build(config.GetPreset("decay", "rk4"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if math.Abs(e.State()[0]-math.Exp(-1)) > 1e-6 {
		t.Errorf("expected exp(-1), got %f", e.State()[0])
	}

	e.Reset()
	if e.State()[0] != 1 {
		t.Errorf("expected reset to 1, got %f", e.State()[0])
	}
}

func TestHeatGradient(t *testing.T) {
	cfg := config.GetPreset("heat", "steady")
	cfg.TimeDis.Type = "NEWTON"
	cfg.NonlinSolver.PrintLevel = 0
	e, err := NewRegistry().Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	values, err := e.Outputs()
	if err != nil {
		t.Fatal(err)
	}
	avg := values["average"]
	if avg <= 0 {
		t.Fatalf("expected a positive average, got %f", avg)
	}
	if values["ks-max"] < avg {
		t.Errorf("ks-max %f below average %f", values["ks-max"], avg)
	}

	// With β > 0 the problem is nonlinear, but the average still grows
	// with the source.
	grad, err := e.Gradient("average", models.HeatSource)
	if err != nil {
		t.Fatal(err)
	}
	if len(grad) != 1 || grad[0] <= 0 {
		t.Errorf("expected a positive derivative, got %v", grad)
	}
}

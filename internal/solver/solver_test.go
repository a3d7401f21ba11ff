package solver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/metrics"
	"github.com/san-kum/multiphys/internal/models"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/solver"
	"github.com/san-kum/multiphys/internal/vec"
)

var quiet = solver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func steadyConfig(problem string, nodes int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Problem = problem
	cfg.TimeDis.Type = "NEWTON"
	cfg.TimeDis.Steady = true
	cfg.NonlinSolver.AbsTol = 1e-13
	cfg.NonlinSolver.RelTol = 0
	cfg.NonlinSolver.PrintLevel = 0
	cfg.LinSolver.Type = "lu"
	cfg.AdjSolver.Type = "lu"
	cfg.ProblemOptions = config.Options{"nodes": nodes, "beta": 0.5, "t-left": 0.2, "t-right": 1.0, "sigma": 2.0}
	return cfg
}

func heatResidual() *physics.Residual {
	return physics.NewResidual("heat", models.NewHeat(4))
}

func jouleResidual() *physics.Residual {
	m, err := physics.WithLoad(heatResidual(), physics.NewLoad("joule", models.NewJouleLoad(4)))
	Expect(err).NotTo(HaveOccurred())
	return physics.NewResidual("joule", m)
}

func newSolver(cfg *config.Config, res *physics.Residual, opts ...solver.Option) *solver.Solver {
	s, err := solver.New(cfg, res, append(opts, quiet)...)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Solver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("SolveForState", func() {
		It("solves 3u - 6 = 0 in one Newton iteration", func() {
			cfg := config.GetPreset("linear", "newton")
			s := newSolver(cfg, physics.NewResidual("linear", models.NewLinear(1)))
			in := inputs.New().SetScalar(models.LinearCoeff, 3).SetScalar(models.LinearRHS, 6)

			u := []float64{0}
			report, err := s.SolveForState(ctx, in, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Newton).NotTo(BeNil())
			Expect(report.Newton.Iterations).To(Equal(1))
			Expect(u[0]).To(BeNumerically("~", 2.0, 1e-12))
			Expect(report.ResNorm).To(BeNumerically("<=", 1e-10))
		})

		It("integrates du/dt = -u with RK4 to within 1e-6 of exp(-1)", func() {
			cfg := config.GetPreset("decay", "rk4")
			s := newSolver(cfg, physics.NewResidual("decay", models.NewDecay(1)))

			u := []float64{1}
			report, err := s.SolveForState(ctx, inputs.New().SetScalar(models.Lambda, 1), u)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.March.Reason).To(Equal(sim.ExitFinalTime))
			Expect(report.Steps).To(Equal(100))
			Expect(report.Time).To(BeNumerically("~", 1.0, 1e-12))
			Expect(u[0]).To(BeNumerically("~", math.Exp(-1), 1e-6))
		})

		It("sizes steps from the module under const-cfl", func() {
			cfg := config.GetPreset("decay", "cfl")
			s := newSolver(cfg, physics.NewResidual("decay", models.NewDecay(1)))

			u := []float64{1}
			report, err := s.SolveForState(ctx, inputs.New().SetScalar(models.Lambda, 4), u)
			Expect(err).NotTo(HaveOccurred())
			// cfl/λ = 0.025
			Expect(report.March.Dts[0]).To(BeNumerically("~", 0.025, 1e-15))
			Expect(u[0]).To(BeNumerically("~", math.Exp(-4), 1e-6))
		})

		It("marches the heat problem to steady state with non-increasing residuals", func() {
			cfg := config.GetPreset("heat", "steady")
			cfg.TimeDis.TFinal = 1e20
			cfg.NonlinSolver.AbsTol = 1e-12
			cfg.NonlinSolver.RelTol = 1e-14
			cfg.NonlinSolver.PrintLevel = 0
			monotone := metrics.NewMonotone(3)
			s := newSolver(cfg, heatResidual(), solver.WithMetric(monotone))
			in := inputs.New().SetScalar(models.HeatSource, 10).SetScalar(models.Conductivity, 1)

			u := vec.Zeros(20)
			report, err := s.SolveForState(ctx, in, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.March.Reason).To(Equal(sim.ExitSteady))
			Expect(report.Steps).To(BeNumerically("<", 100))
			Expect(report.March.Metrics["residual_increases"]).To(BeZero())

			norms := report.March.ResNorms
			for i := 4; i < len(norms); i++ {
				Expect(norms[i]).To(BeNumerically("<=", norms[i-1]), "step %d", i)
			}
			Expect(report.ResNorm).To(BeNumerically("<=", cfg.TimeDis.SteadyRelTol*norms[0]))
		})

		It("globalizes NEWTON with pseudo-time continuation", func() {
			in := inputs.New().SetScalar(models.HeatSource, 10).SetScalar(models.Conductivity, 1.3)

			plain := newSolver(steadyConfig("heat", 12), heatResidual())
			want := vec.Zeros(12)
			direct, err := plain.SolveForState(ctx, in, want)
			Expect(err).NotTo(HaveOccurred())

			cfg := steadyConfig("heat", 12)
			cfg.TimeDis.Continuation = true
			cfg.TimeDis.Dt = 1e-3
			got := vec.Zeros(12)
			report, err := newSolver(cfg, heatResidual()).SolveForState(ctx, in, got)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Steps).To(BeNumerically(">", direct.Steps))
			for i := range want {
				Expect(got[i]).To(BeNumerically("~", want[i], 1e-10))
			}
		})

		It("runs the initial and terminal hooks around a steady solve", func() {
			var calls []string
			hooks := sim.Hooks{
				Initial: func([]float64) error {
					calls = append(calls, "initial")
					return nil
				},
				Terminal: func(iter int, _ float64, _ []float64) error {
					calls = append(calls, "terminal")
					Expect(iter).To(Equal(1))
					return nil
				},
			}
			s := newSolver(config.GetPreset("linear", "newton"), physics.NewResidual("linear", models.NewLinear(2)), solver.WithHooks(hooks))
			in := inputs.New().SetScalar(models.LinearCoeff, 3).SetScalar(models.LinearRHS, 6)

			_, err := s.SolveForState(ctx, in, vec.Zeros(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal([]string{"initial", "terminal"}))
		})

		It("runs the terminal hooks when an initial hook fails", func() {
			errBoom := errors.New("boom")
			terminalIter := -1
			hooks := sim.Hooks{
				Initial: func([]float64) error { return errBoom },
				Terminal: func(iter int, _ float64, _ []float64) error {
					terminalIter = iter
					return nil
				},
			}
			s := newSolver(config.GetPreset("linear", "newton"), physics.NewResidual("linear", models.NewLinear(2)), solver.WithHooks(hooks))
			in := inputs.New().SetScalar(models.LinearCoeff, 3).SetScalar(models.LinearRHS, 6)

			_, err := s.SolveForState(ctx, in, vec.Zeros(2))
			Expect(errors.Is(err, errBoom)).To(BeTrue())
			Expect(terminalIter).To(Equal(0))
		})

		It("rejects a state of the wrong size", func() {
			s := newSolver(steadyConfig("heat", 12), heatResidual())
			_, err := s.SolveForState(ctx, nil, vec.Zeros(3))
			Expect(errors.Is(err, vec.ErrDimensionMismatch)).To(BeTrue())
		})
	})

	Describe("configuration", func() {
		It("fails fast on invalid configuration", func() {
			cfg := steadyConfig("heat", 12)
			cfg.TimeDis.Dt = -1
			_, err := solver.New(cfg, heatResidual())
			var cerr *config.ConfigurationError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Key).To(Equal("time-dis.dt"))
		})

		It("reports problem option errors", func() {
			cfg := steadyConfig("heat", 12)
			cfg.ProblemOptions["nodes"] = 0
			_, err := solver.New(cfg, heatResidual())
			Expect(errors.Is(err, config.ErrConfiguration)).To(BeTrue())
		})
	})

	Describe("outputs", func() {
		var (
			s  *solver.Solver
			in *inputs.Bag
		)

		BeforeEach(func() {
			s = newSolver(steadyConfig("heat", 12), heatResidual())
			Expect(s.CreateOutput("average", models.NewAverage(models.UniformMesh(12, 1)), nil)).To(Succeed())
			Expect(s.CreateOutput("ks-max", models.NewKSMax(), config.Options{"rho": 30.0})).To(Succeed())
			u := vec.Zeros(12)
			u.Fill(2)
			in = inputs.New().SetField(inputs.State, u)
		})

		It("rejects duplicates and unknown names", func() {
			err := s.CreateOutput("average", models.NewKSMax(), nil)
			Expect(errors.Is(err, solver.ErrDuplicateOutput)).To(BeTrue())

			_, err = s.CalcOutput("missing", in)
			Expect(errors.Is(err, solver.ErrUnknownOutput)).To(BeTrue())
			Expect(errors.Is(s.SetOutputOptions("missing", nil), solver.ErrUnknownOutput)).To(BeTrue())
			Expect(s.Outputs()).To(Equal([]string{"average", "ks-max"}))
		})

		It("evaluates registered outputs", func() {
			v, err := s.CalcOutput("average", in)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNumerically("~", 2.0, 1e-14))

			Expect(s.SetOutputOptions("ks-max", config.Options{"rho": -1.0})).NotTo(Succeed())
		})

		It("accumulates partials and products", func() {
			partial := vec.Zeros(12)
			Expect(s.CalcOutputPartial("average", inputs.State, in, partial)).To(Succeed())
			once := partial.Clone()
			Expect(s.CalcOutputPartial("average", inputs.State, in, partial)).To(Succeed())
			for i := range partial {
				Expect(partial[i]).To(BeNumerically("~", 2*once[i], 1e-15))
			}

			dir := vec.Zeros(12)
			dir.Fill(1)
			jvp, err := s.OutputJVP("average", inputs.State, in, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(jvp).To(BeNumerically("~", 1.0, 1e-14))

			bar := vec.Zeros(12)
			Expect(s.OutputVJP("ks-max", inputs.State, in, 2, bar)).To(Succeed())
			// Equal entries share the softmax weight evenly.
			Expect(bar[0]).To(BeNumerically("~", 2.0/12, 1e-14))
		})
	})

	Describe("adjoint", func() {
		It("refuses unsteady problems", func() {
			s := newSolver(config.GetPreset("decay", "rk4"), physics.NewResidual("decay", models.NewDecay(1)))
			err := s.SolveForAdjoint(nil, []float64{1}, []float64{1}, []float64{0})
			Expect(errors.Is(err, solver.ErrUnsteadyAdjoint)).To(BeTrue())
		})

		DescribeTable("total derivatives match finite differences of solve-then-evaluate",
			func(problem string, residual func() *physics.Residual, output, wrt string) {
				base := inputs.New().
					SetScalar(models.HeatSource, 10).
					SetScalar(models.Conductivity, 1.3).
					SetScalar(models.CurrentDensity, 1.5)
				build := func() *solver.Solver {
					s := newSolver(steadyConfig(problem, 12), residual())
					mesh := models.UniformMesh(12, 1)
					Expect(s.CreateOutput("average", models.NewAverage(mesh), nil)).To(Succeed())
					Expect(s.CreateOutput("ks-max", models.NewKSMax(), config.Options{"rho": 20.0})).To(Succeed())
					return s
				}
				pipeline := func(in *inputs.Bag) float64 {
					s := build()
					u := vec.Zeros(12)
					_, err := s.SolveForState(ctx, in, u)
					Expect(err).NotTo(HaveOccurred())
					v, err := s.CalcOutput(output, in.Clone().SetField(inputs.State, u))
					Expect(err).NotTo(HaveOccurred())
					return v
				}

				s := build()
				u := vec.Zeros(12)
				_, err := s.SolveForState(ctx, base, u)
				Expect(err).NotTo(HaveOccurred())
				grad, err := s.TotalDerivative(output, wrt, base, u)
				Expect(err).NotTo(HaveOccurred())
				Expect(grad).To(HaveLen(1))

				const h = 1e-5
				p, err := base.Scalar(wrt)
				Expect(err).NotTo(HaveOccurred())
				fd := (pipeline(base.Clone().SetScalar(wrt, p+h)) - pipeline(base.Clone().SetScalar(wrt, p-h))) / (2 * h)
				Expect(grad[0]).To(BeNumerically("~", fd, 1e-6*math.Max(1, math.Abs(fd))))
			},
			Entry("heat average by source", "heat", heatResidual, "average", models.HeatSource),
			Entry("heat average by conductivity", "heat", heatResidual, "average", models.Conductivity),
			Entry("heat ks-max by source", "heat", heatResidual, "ks-max", models.HeatSource),
			Entry("joule average by current density", "joule", jouleResidual, "average", models.CurrentDensity),
		)

		It("differentiates through the mesh coordinates", func() {
			mesh := models.UniformMesh(12, 1)
			base := inputs.New().
				SetScalar(models.HeatSource, 10).
				SetScalar(models.Conductivity, 1.3).
				SetField(models.MeshCoords, mesh)
			build := func() *solver.Solver {
				s := newSolver(steadyConfig("heat", 12), heatResidual())
				Expect(s.CreateOutput("average", models.NewAverage(mesh), nil)).To(Succeed())
				return s
			}

			s := build()
			u := vec.Zeros(12)
			_, err := s.SolveForState(ctx, base, u)
			Expect(err).NotTo(HaveOccurred())
			grad, err := s.TotalDerivative("average", models.MeshCoords, base, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(grad).To(HaveLen(14))

			// Stretch the interior nodes toward the right end.
			dir := make([]float64, 14)
			for i := 1; i < 13; i++ {
				dir[i] = math.Sin(math.Pi * mesh[i])
			}
			solveAt := func(step float64) float64 {
				x := vec.Vector(mesh).Clone()
				x.Axpy(step, dir)
				in := base.Clone().SetField(models.MeshCoords, x)
				s := build()
				w := vec.Zeros(12)
				_, err := s.SolveForState(ctx, in, w)
				Expect(err).NotTo(HaveOccurred())
				v, err := s.CalcOutput("average", in.Clone().SetField(inputs.State, w))
				Expect(err).NotTo(HaveOccurred())
				return v
			}
			const h = 1e-5
			fd := (solveAt(h) - solveAt(-h)) / (2 * h)
			Expect(vec.Vector(grad).Dot(dir)).To(BeNumerically("~", fd, 1e-6*math.Max(1, math.Abs(fd))))
		})
	})
})

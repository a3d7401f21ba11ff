package newton_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/observability"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/vec"
)

func linear(a, b float64) *physics.Residual {
	return physics.NewResidual("linear", &pointwise{
		n:  1,
		f:  func(u float64, _ int) float64 { return a*u - b },
		df: func(float64, int) float64 { return a },
	})
}

func cubic(n int) *physics.Residual {
	return physics.NewResidual("cubic", &pointwise{
		n:  n,
		f:  func(u float64, i int) float64 { return u*u*u + u - 10 - float64(i) },
		df: func(u float64, _ int) float64 { return 3*u*u + 1 },
	})
}

var _ = Describe("Newton", func() {
	var (
		ctx context.Context
		cfg newton.Config
		lin linalg.TransposeSolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = newton.DefaultConfig()
		cfg.AbsTol = 1e-10
		cfg.RelTol = 1e-10
		lin = linalg.NewLU()
	})

	It("solves 3u - 6 = 0 from u0 = 0 in exactly one iteration", func() {
		u := []float64{0}
		s := newton.New(cfg, lin)

		result, err := s.Solve(ctx, linear(3, 6), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(newton.Converged))
		Expect(result.Iterations).To(Equal(1))
		Expect(u[0]).To(BeNumerically("~", 2.0, 1e-12))
		Expect(s.Status()).To(Equal(newton.Converged))
	})

	DescribeTable("converges in one step for linear residuals from any guess",
		func(u0 float64) {
			u := []float64{u0}
			result, err := newton.New(cfg, lin).Solve(ctx, linear(-4.5, 1.25), nil, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Iterations).To(Equal(1))
			Expect(u[0]).To(BeNumerically("~", 1.25/-4.5, 1e-8))
		},
		Entry("zero", 0.0),
		Entry("far positive", 1e6),
		Entry("negative", -37.5),
	)

	It("converges a linear system with GMRES", func() {
		g, err := linalg.NewSolver(linalg.Options{Type: "gmres", Prec: "jacobi", KDim: 20, MaxIter: 200, RelTol: 1e-13, AbsTol: 1e-15})
		Expect(err).NotTo(HaveOccurred())
		u := make([]float64, 10)

		result, err := newton.New(cfg, g).Solve(ctx, physics.NewResidual("spd", newSPD(10)), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Iterations).To(Equal(1))
	})

	It("converges quadratically on a nonlinear residual", func() {
		u := make([]float64, 3)
		result, err := newton.New(cfg, lin).Solve(ctx, cubic(3), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Converged()).To(BeTrue())
		Expect(u[0]).To(BeNumerically("~", 2.0, 1e-9))
		Expect(result.History[0]).To(BeNumerically(">", result.FinalNorm))
	})

	It("reports the initial guess as converged without iterating", func() {
		u := []float64{2}
		result, err := newton.New(cfg, lin).Solve(ctx, linear(3, 6), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Iterations).To(Equal(0))
	})

	It("fails with MaxIterExceeded carrying the last norm and iteration count", func() {
		cfg.MaxIter = 1
		u := []float64{0}
		result, err := newton.New(cfg, lin).Solve(ctx, cubic(1), nil, u)

		Expect(err).To(MatchError(newton.ErrMaxIterExceeded))
		var cerr *newton.ConvergenceError
		Expect(errors.As(err, &cerr)).To(BeTrue())
		Expect(cerr.Iterations).To(Equal(1))
		Expect(cerr.Norm).To(Equal(result.FinalNorm))
		Expect(cerr.InitialNorm).To(Equal(10.0))
		Expect(result.Status).To(Equal(newton.MaxIterExceeded))
	})

	It("reports divergence when the residual grows past the factor", func() {
		cfg.DivFactor = 1.2
		res := physics.NewResidual("atan", &pointwise{
			n:  1,
			f:  func(u float64, _ int) float64 { return math.Atan(u) },
			df: func(u float64, _ int) float64 { return 1 / (1 + u*u) },
		})
		u := []float64{2}

		result, err := newton.New(cfg, lin).Solve(ctx, res, nil, u)
		Expect(err).To(MatchError(newton.ErrDiverged))
		Expect(result.Status).To(Equal(newton.Diverged))
		Expect(result.Iterations).To(Equal(2))
	})

	It("tolerates failure in best-effort mode", func() {
		cfg.MaxIter = 1
		cfg.Abort = false
		u := []float64{0}

		result, err := newton.New(cfg, lin).Solve(ctx, cubic(1), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(newton.MaxIterExceeded))
	})

	It("treats a non-finite residual as fatal", func() {
		cfg.Abort = false
		res := physics.NewResidual("sqrt", &pointwise{
			n:  1,
			f:  func(u float64, _ int) float64 { return math.Sqrt(u) - 1 },
			df: func(u float64, _ int) float64 { return 0.5 / math.Sqrt(u) },
		})
		failed := testutil.ToFloat64(observability.NewtonSolvesTotal.WithLabelValues("failed"))

		s := newton.New(cfg, lin)
		result, err := s.Solve(ctx, res, nil, []float64{-1})
		Expect(err).To(MatchError(vec.ErrNonFinite))
		var nerr *newton.NumericalError
		Expect(errors.As(err, &nerr)).To(BeTrue())
		Expect(nerr.Where).To(Equal("residual"))

		Expect(result.Status).To(Equal(newton.Failed))
		Expect(s.Status()).To(Equal(newton.Failed))
		Expect(testutil.ToFloat64(observability.NewtonSolvesTotal.WithLabelValues("failed"))).To(Equal(failed + 1))
	})

	It("rejects a state of the wrong length", func() {
		_, err := newton.New(cfg, lin).Solve(ctx, linear(3, 6), nil, []float64{0, 0})
		Expect(err).To(HaveOccurred())
	})

	It("stops on a cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		s := newton.New(cfg, lin)
		_, err := s.Solve(cctx, cubic(1), nil, []float64{0})
		Expect(err).To(MatchError(context.Canceled))
		Expect(s.Status()).To(Equal(newton.Failed))
		Expect(s.Status().Terminal()).To(BeTrue())
	})

	It("reports every iteration to the monitor", func() {
		var seen []newton.Iteration
		s := newton.New(cfg, lin, newton.WithMonitor(func(it newton.Iteration) { seen = append(seen, it) }))

		result, err := s.Solve(ctx, cubic(2), nil, make([]float64, 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(result.Iterations + 1))
		Expect(seen[0].RelNorm).To(BeNumerically("~", 1.0, 1e-15))
	})

	It("damps steps with a backtracking line search", func() {
		res := physics.NewResidual("atan", &pointwise{
			n:  1,
			f:  func(u float64, _ int) float64 { return math.Atan(u) },
			df: func(u float64, _ int) float64 { return 1 / (1 + u*u) },
		})
		s := newton.New(cfg, lin, newton.WithLineSearch(&newton.Backtracking{Mu: 1e-4, RhoLo: 0.1, RhoHi: 0.5, MaxIter: 30}))
		u := []float64{2}

		result, err := s.Solve(ctx, res, nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Converged()).To(BeTrue())
		Expect(u[0]).To(BeNumerically("~", 0, 1e-9))
	})

	It("takes the last trial step when the line search is exhausted", func() {
		// wrong-signed Jacobian: every Newton direction points uphill
		res := physics.NewResidual("uphill", &pointwise{
			n:  1,
			f:  func(u float64, _ int) float64 { return u - 1 },
			df: func(float64, int) float64 { return -1 },
		})
		cfg.MaxIter = 3
		s := newton.New(cfg, lin, newton.WithLineSearch(&newton.Backtracking{Mu: 1e-4, RhoLo: 0.1, RhoHi: 0.5, MaxIter: 5}))
		u := []float64{0}

		result, err := s.Solve(ctx, res, nil, u)
		Expect(err).To(MatchError(newton.ErrMaxIterExceeded))
		Expect(result.LineSearchFailures).To(Equal(3))
		Expect(u[0]).To(BeNumerically("<", 0))
	})
})

var _ = Describe("PTC", func() {
	var cfg newton.Config

	BeforeEach(func() {
		cfg = newton.DefaultConfig()
		cfg.AbsTol = 1e-10
		cfg.RelTol = 1e-12
		cfg.MaxIter = 200
	})

	It("grows the pseudo-time step as the residual shrinks", func() {
		p := newton.NewPTC(0.1, 2)
		p.Reset()
		Expect(1 / p.Shift(0, 10, 10)).To(BeNumerically("~", 0.1, 1e-15))
		Expect(1 / p.Shift(1, 5, 10)).To(BeNumerically("~", 0.4, 1e-15))
		Expect(1 / p.Shift(2, 8, 10)).To(BeNumerically("~", 0.4, 1e-15), "step never shrinks")
		Expect(p.Step()).To(BeNumerically("~", 0.4, 1e-15))
	})

	It("produces non-increasing residual norms on a steady problem", func() {
		ptc := newton.NewPTC(1.0, 2)
		s := newton.New(cfg, linalg.NewLU(), newton.WithController(ptc), newton.WithName("ptc"))
		u := make([]float64, 16)

		result, err := s.Solve(context.Background(), physics.NewResidual("spd", newSPD(16)), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Converged()).To(BeTrue())
		Expect(result.Iterations).To(BeNumerically(">", 1))
		for k := 3; k < len(result.History); k++ {
			Expect(result.History[k]).To(BeNumerically("<=", result.History[k-1]*(1+1e-10)),
				"iteration %d", k)
		}
	})

	It("reaches the same root as Newton on a nonlinear residual", func() {
		u := make([]float64, 4)
		s := newton.New(cfg, linalg.NewLU(), newton.WithController(newton.NewPTC(0.05, 1.5)))
		result, err := s.Solve(context.Background(), cubic(4), nil, u)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Converged()).To(BeTrue())
		Expect(u[0]).To(BeNumerically("~", 2.0, 1e-9))
	})
})

var _ = Describe("Backtracking", func() {
	It("accepts the full step when it decreases the residual enough", func() {
		b := &newton.Backtracking{Mu: 1e-4, RhoLo: 0.1, RhoHi: 0.5, MaxIter: 5}
		alpha, err := b.Search(func(a float64) (float64, error) { return 1 - a, nil }, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(alpha).To(Equal(1.0))
	})

	It("reports exhaustion with the last trial step", func() {
		b := &newton.Backtracking{Mu: 1e-4, RhoLo: 0.1, RhoHi: 0.5, MaxIter: 4}
		trials := 0
		alpha, err := b.Search(func(a float64) (float64, error) {
			trials++
			return 1 + a, nil
		}, 1)
		Expect(err).To(MatchError(newton.ErrLineSearchExhausted))
		Expect(trials).To(Equal(4))
		Expect(alpha).To(BeNumerically(">", 0))
		Expect(alpha).To(BeNumerically("<", 1))
	})
})

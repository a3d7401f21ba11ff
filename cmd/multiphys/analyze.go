package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/experiment"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/models"
	"github.com/san-kum/multiphys/internal/optim"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/sens"
	"github.com/spf13/cobra"
)

var (
	wrtFlags []string

	fdStep      float64
	checkTol    float64
	checkSolved bool
	seed        int64

	optOutput  string
	optParam   string
	optTarget  float64
	optTol     float64
	optMaxIter int
	optMaxStep float64
	gridFlags  map[string]string
	workers    int
)

func buildAndSolve(cmd *cobra.Command, problem string, solve bool) (*experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd, problem)
	if err != nil {
		return nil, err
	}
	exp, err := experiment.NewRegistry().Build(cfg)
	if err != nil {
		return nil, err
	}
	if solve {
		if _, err := exp.Run(cmd.Context()); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

func runAdjoint(cmd *cobra.Command, args []string) error {
	exp, err := buildAndSolve(cmd, args[0], true)
	if err != nil {
		return err
	}

	wrts := wrtFlags
	if len(wrts) == 0 {
		for k := range exp.Config().Inputs {
			wrts = append(wrts, k)
		}
		sort.Strings(wrts)
	}

	values, err := exp.Outputs()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OUTPUT\tVALUE\tWRT\tDERIVATIVE")
	for _, name := range exp.Solver().Outputs() {
		for _, wrt := range wrts {
			grad, err := exp.Gradient(name, wrt)
			if err != nil {
				return fmt.Errorf("d%s/d%s: %w", name, wrt, err)
			}
			fmt.Fprintf(w, "%s\t%.10g\t%s\t%s\n", name, values[name], wrt, formatGradient(grad))
		}
	}
	return w.Flush()
}

func formatGradient(g []float64) string {
	if len(g) == 1 {
		return strconv.FormatFloat(g[0], 'g', 10, 64)
	}
	var norm float64
	for _, v := range g {
		norm += v * v
	}
	return fmt.Sprintf("[%d entries, norm %.6g]", len(g), math.Sqrt(norm))
}

func runCheck(cmd *cobra.Command, args []string) error {
	exp, err := buildAndSolve(cmd, args[0], checkSolved)
	if err != nil {
		return err
	}

	bag := exp.Inputs().Clone().SetField(inputs.State, exp.State())
	if p := exp.Problem(); p.Mesh != nil {
		bag.SetField(models.MeshCoords, p.MeshOrUniform())
	}
	rng := rand.New(rand.NewSource(seed))
	res := exp.Solver().Residual()

	var reports []sens.Report
	var skipped, broken []string
	collect := func(r sens.Report, err error) {
		switch {
		case errors.Is(err, physics.ErrUnsupported):
			skipped = append(skipped, err.Error())
		case err != nil:
			broken = append(broken, err.Error())
		default:
			reports = append(reports, r)
		}
	}

	keys := bag.Keys()
	sort.Strings(keys)
	for _, wrt := range keys {
		in, _ := bag.Get(wrt)
		d := sens.RandomDirection(rng, in.Size())
		collect(sens.ResidualDuality(res, bag, wrt, rng))
		collect(sens.ResidualFD(res, bag, wrt, d, fdStep))
		for _, name := range exp.Solver().Outputs() {
			out, err := exp.Solver().Output(name)
			if err != nil {
				return err
			}
			collect(sens.OutputDuality(out, bag, wrt, rng))
			collect(sens.OutputFD(out, bag, wrt, d, fdStep))
		}
	}

	failed := 0
	for _, r := range reports {
		status := "ok"
		if !r.Passed(checkTol) {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-4s %s\n", status, r)
	}
	for _, s := range skipped {
		fmt.Printf("skip %s\n", s)
	}
	for _, s := range broken {
		fmt.Printf("err  %s\n", s)
	}
	if failed > 0 || len(broken) > 0 {
		return fmt.Errorf("%d of %d sensitivity checks failed, %d errored", failed, len(reports), len(broken))
	}
	fmt.Printf("\n%d checks passed\n", len(reports))
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	if len(gridFlags) > 0 {
		return runGrid(cmd, args[0])
	}
	if optParam == "" || !cmd.Flags().Changed("target") {
		return errors.New("optimize needs --param and --target, or --grid")
	}

	exp, err := buildAndSolve(cmd, args[0], false)
	if err != nil {
		return err
	}
	m := &optim.Match{
		Output:  optOutput,
		Param:   optParam,
		Target:  optTarget,
		Tol:     optTol,
		MaxIter: optMaxIter,
		MaxStep: optMaxStep,
	}
	result, err := m.Run(cmd.Context(), exp)
	if result == nil {
		return err
	}
	for i, step := range result.History {
		fmt.Printf("%3d  %s=%-14.8g %s=%-14.8g d/dp=%.6g\n", i, optParam, step.Param, optOutput, step.Value, step.Grad)
	}
	if err != nil {
		return err
	}
	fmt.Printf("\n%s = %.10g gives %s = %.10g after %d solves\n", optParam, result.Param, optOutput, result.Value, result.Iterations)
	return nil
}

func runGrid(cmd *cobra.Command, problem string) error {
	base, err := resolveConfig(cmd, problem)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(gridFlags))
	for name := range gridFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	ranges := make([][]float64, len(names))
	for i, name := range names {
		if ranges[i], err = parseRange(gridFlags[name]); err != nil {
			return &config.ConfigurationError{Key: "grid." + name, Reason: err.Error()}
		}
	}

	registry := experiment.NewRegistry()
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for k, v := range params {
			cfg.Inputs[k] = v
		}
		return registry.Build(cfg)
	}

	g := optim.NewGridSearch(names, ranges)
	g.Workers = workers
	best, val, points, err := g.Search(cmd.Context(), build, optOutput)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(optOutput))
	for _, p := range points {
		cols := make([]string, 0, len(names)+1)
		for _, name := range names {
			cols = append(cols, strconv.FormatFloat(p.Params[name], 'g', 6, 64))
		}
		if p.Err != nil {
			cols = append(cols, "error: "+p.Err.Error())
		} else {
			cols = append(cols, strconv.FormatFloat(p.Value, 'g', 10, 64))
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest %s = %.10g at %v\n", optOutput, val, best)
	return nil
}

// parseRange reads lo:hi:n as n evenly spaced values, or a single value.
func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		v, err := strconv.ParseFloat(parts[0], 64)
		return []float64{v}, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("want lo:hi:n, got %q", s)
	}
	lo, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, err
	}
	hi, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return []float64{lo}, nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/experiment"
	"github.com/san-kum/multiphys/internal/logging"
	"github.com/san-kum/multiphys/internal/observability"
	"github.com/san-kum/multiphys/internal/tui"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	debug       []string
	metricsFile string

	configFile string
	preset     string
	dt         float64
	tFinal     float64
	scheme     string
	inputFlags map[string]string
	optionFlag map[string]string

	every      int
	live       bool
	frameRate  int
	exportPath string
	plotNode   int
)

const plotWidth = 80

// main wires the commands and runs the interactive browser when no
// subcommand is given.
func main() {
	rootCmd := &cobra.Command{
		Use:   "multiphys",
		Short: "multiphysics PDE solver kernel",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(os.Stderr, debug, logLevel)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsFile == "" {
				return nil
			}
			return observability.WriteTextfile(metricsFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunInteractive(experiment.NewRegistry())
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".multiphys", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&debug, "debug", nil, "debug categories: "+fmt.Sprint(logging.Categories()))
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "solve for the state and record the run",
		Args:  cobra.ExactArgs(1),
		RunE:  runProblem,
	}
	addProblemFlags(runCmd)
	runCmd.Flags().IntVar(&every, "every", 1, "record every n-th step")
	runCmd.Flags().BoolVar(&live, "live", false, "draw the solve in the terminal")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate for --live")
	runCmd.Flags().StringVar(&exportPath, "export", "", "also write a json summary to this path")

	adjointCmd := &cobra.Command{
		Use:   "adjoint [problem]",
		Short: "total derivatives of every output by the adjoint method",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdjoint,
	}
	addProblemFlags(adjointCmd)
	adjointCmd.Flags().StringSliceVar(&wrtFlags, "wrt", nil, "inputs to differentiate by (default: every scalar input)")

	checkCmd := &cobra.Command{
		Use:   "check [problem]",
		Short: "verify residual and output sensitivities",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	addProblemFlags(checkCmd)
	checkCmd.Flags().Float64Var(&fdStep, "fd-step", 1e-6, "finite-difference step")
	checkCmd.Flags().Float64Var(&checkTol, "tol", 1e-6, "relative error tolerance")
	checkCmd.Flags().BoolVar(&checkSolved, "solve", true, "check at the solved state instead of the initial one")
	checkCmd.Flags().Int64Var(&seed, "seed", 1, "random seed for directions")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [problem]",
		Short: "match an output to a target, or grid-search inputs",
		Args:  cobra.ExactArgs(1),
		RunE:  runOptimize,
	}
	addProblemFlags(optimizeCmd)
	optimizeCmd.Flags().StringVar(&optOutput, "output", "average", "output to match or minimize")
	optimizeCmd.Flags().StringVar(&optParam, "param", "", "scalar input to adjust")
	optimizeCmd.Flags().Float64Var(&optTarget, "target", 0, "target output value")
	optimizeCmd.Flags().Float64Var(&optTol, "tol", 1e-8, "target tolerance")
	optimizeCmd.Flags().IntVar(&optMaxIter, "max-iter", 20, "maximum design updates")
	optimizeCmd.Flags().Float64Var(&optMaxStep, "max-step", 0, "bound on a single update")
	optimizeCmd.Flags().StringToStringVar(&gridFlags, "grid", nil, "grid search ranges, input=lo:hi:n")
	optimizeCmd.Flags().IntVar(&workers, "workers", 4, "concurrent grid points")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list problems and their presets",
		RunE:  listPresets,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotNode, "node", -1, "unknown to plot over time (default middle node)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print a recorded run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, adjointCmd, checkCmd, optimizeCmd, listCmd, presetsCmd, plotCmd, exportCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func addProblemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset to start from (default: the problem's first)")
	cmd.Flags().Float64Var(&dt, "dt", 0, "time step")
	cmd.Flags().Float64Var(&tFinal, "t-final", 0, "final time")
	cmd.Flags().StringVar(&scheme, "scheme", "", "time scheme (RK1, RK4, RK45, MIDPOINT, PTC, NEWTON)")
	cmd.Flags().StringToStringVar(&inputFlags, "input", nil, "scalar design inputs, key=value")
	cmd.Flags().StringToStringVar(&optionFlag, "option", nil, "problem options, key=value")
}

// resolveConfig layers, lowest first: the preset, the config file and
// the command line.
func resolveConfig(cmd *cobra.Command, problem string) (*config.Config, error) {
	name := preset
	if name == "" {
		names := config.ListPresets(problem)
		if len(names) == 0 {
			return nil, fmt.Errorf("no presets for problem %q", problem)
		}
		name = names[0]
	}
	cfg := config.GetPreset(problem, name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %s/%s", problem, name)
	}

	if configFile != "" {
		if err := config.LoadOnto(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if cmd.Flags().Changed("dt") {
		cfg.TimeDis.Dt = dt
	}
	if cmd.Flags().Changed("t-final") {
		cfg.TimeDis.TFinal = tFinal
	}
	if scheme != "" {
		cfg.TimeDis.Type = scheme
	}
	if cfg.Inputs == nil {
		cfg.Inputs = map[string]float64{}
	}
	for k, s := range inputFlags {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "inputs." + k, Reason: err.Error()}
		}
		cfg.Inputs[k] = v
	}
	flagOpts := config.Options{}
	for k, s := range optionFlag {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			flagOpts[k] = v
		} else {
			flagOpts[k] = s
		}
	}
	opts, err := cfg.ProblemOptions.Merge(flagOpts)
	if err != nil {
		return nil, err
	}
	cfg.ProblemOptions = opts
	cfg.Problem = problem
	return cfg, nil
}

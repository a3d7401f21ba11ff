package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/multiphys/internal/experiment"
	"github.com/san-kum/multiphys/internal/solver"
	"github.com/san-kum/multiphys/internal/storage"
	"github.com/san-kum/multiphys/internal/tui"
	"github.com/spf13/cobra"
)

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID := storage.NewRunID(cfg.Problem)
	recorder, err := st.NewStateLogger(runID, cfg.TimeDis.TInitial, every)
	if err != nil {
		return err
	}
	defer recorder.Close()

	registry := experiment.NewRegistry()
	opts := []solver.Option{solver.WithHooks(recorder.Hooks())}
	for _, m := range registry.DefaultMetrics() {
		opts = append(opts, solver.WithMetric(m))
	}
	var renderer *tui.LiveRenderer
	if live {
		renderer = tui.NewLiveRenderer(cfg.Problem+" "+cfg.TimeDis.Type, frameRate)
		opts = append(opts, solver.WithObserver(renderer), solver.WithMonitor(renderer.Monitor()))
	}

	exp, err := registry.Build(cfg, opts...)
	if err != nil {
		return err
	}

	if renderer == nil {
		fmt.Printf("solving %s with %s...\n", cfg.Problem, cfg.TimeDis.Type)
	} else {
		renderer.Start()
	}
	start := time.Now()

	report, err := exp.Run(cmd.Context())
	if renderer != nil {
		renderer.Flush()
		renderer.Stop()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	outputs, err := exp.Outputs()
	if err != nil {
		return err
	}

	meta := &storage.RunMetadata{
		ID:      runID,
		Problem: cfg.Problem,
		Scheme:  report.Scheme,
		Steady:  cfg.TimeDis.Steady,
		Dt:      cfg.TimeDis.Dt,
		TFinal:  cfg.TimeDis.TFinal,
		Steps:   report.Steps,
		Time:    report.Time,
		ResNorm: report.ResNorm,
		Inputs:  cfg.Inputs,
		Outputs: outputs,
	}
	data := &storage.ExportData{
		Problem: cfg.Problem,
		Scheme:  report.Scheme,
		Steps:   report.Steps,
		Time:    report.Time,
		State:   exp.State(),
		Outputs: outputs,
	}
	switch {
	case report.March != nil:
		meta.Reason = report.March.Reason.String()
		meta.Metrics = report.March.Metrics
		data.Times, data.Dts, data.ResNorms = report.March.Times, report.March.Dts, report.March.ResNorms
		data.Metrics = report.March.Metrics
	case report.Newton != nil:
		meta.Reason = report.Newton.Status.String()
		data.ResNorms = report.Newton.History
	}

	if _, err := st.SaveMetadata(meta); err != nil {
		return err
	}
	if exportPath != "" {
		if err := storage.ExportJSON(exportPath, data); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d  t: %g  residual: %.3e  (%s)\n", report.Steps, report.Time, report.ResNorm, meta.Reason)
	printValues("outputs", outputs)
	printValues("metrics", meta.Metrics)

	return nil
}

func printValues(title string, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("\n%s:\n", title)
	for _, name := range names {
		fmt.Printf("  %s: %.10g\n", name, values[name])
	}
}

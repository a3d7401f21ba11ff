package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/storage"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tSCHEME\tSTEPS\tT\tRESIDUAL\tREASON")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4g\t%.3e\t%s\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Scheme,
			run.Steps,
			run.Time,
			run.ResNorm,
			run.Reason,
		)
	}

	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tPRESET\tSCHEME\tSTEADY\tDT\tT-FINAL\tOUTPUTS")
	for _, problem := range config.Problems() {
		for _, name := range config.ListPresets(problem) {
			cfg := config.GetPreset(problem, name)
			outputs := make([]string, 0, len(cfg.Outputs))
			for out := range cfg.Outputs {
				outputs = append(outputs, out)
			}
			sort.Strings(outputs)
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%g\t%g\t%v\n",
				problem, name, cfg.TimeDis.Type, cfg.TimeDis.Steady, cfg.TimeDis.Dt, cfg.TimeDis.TFinal, outputs)
		}
	}
	return w.Flush()
}

// series extracts unknown idx from every stored state. Negative idx
// selects the middle node.
func series(states [][]float64, idx int) (int, []float64) {
	if idx < 0 {
		idx = len(states[len(states)-1]) / 2
	}
	out := make([]float64, 0, len(states))
	for _, u := range states {
		if idx < len(u) {
			out = append(out, u[idx])
		}
	}
	return idx, out
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(meta.ID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("run %s has no recorded states", meta.ID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s/%s  %d samples  t=%g\n\n",
		meta.ID, meta.Problem, meta.Scheme, len(states), times[len(times)-1])

	opts := func(h int, caption string) []asciigraph.Option {
		return []asciigraph.Option{asciigraph.Height(h), asciigraph.Width(plotWidth), asciigraph.Caption(caption)}
	}

	if last := states[len(states)-1]; len(last) > 1 {
		fmt.Fprintln(out, asciigraph.Plot(last, opts(12, "final profile")...))
		fmt.Fprintln(out)
	}
	if len(states) > 1 {
		idx, data := series(states, plotNode)
		if len(data) == 0 {
			return fmt.Errorf("node %d out of range", idx)
		}
		fmt.Fprintln(out, asciigraph.Plot(data, opts(10, fmt.Sprintf("u%d history", idx))...))
		fmt.Fprintln(out)
	}
	return nil
}

// exportRun prints a recorded run, its trajectory included, as json.
func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	data := &storage.ExportData{
		Problem: meta.Problem,
		Scheme:  meta.Scheme,
		Steps:   meta.Steps,
		Time:    meta.Time,
		Outputs: meta.Outputs,
		Metrics: meta.Metrics,
	}
	states, times, err := st.LoadStates(meta.ID)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case len(states) > 0:
		data.Times = times
		data.State = states[len(states)-1]
	}
	return storage.WriteJSON(cmd.OutOrStdout(), data)
}

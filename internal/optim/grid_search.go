package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/multiphys/internal/experiment"
)

// BuildFunc creates an independent experiment for one grid point.
type BuildFunc func(params map[string]float64) (*experiment.Experiment, error)

// GridSearch evaluates an output over the Cartesian product of input
// ranges and keeps the smallest value. Points run concurrently, at most
// Workers at a time.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	Workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, Workers: 4}
}

type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Points lists the grid in row-major order, the last parameter varying
// fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	g.collect(0, map[string]float64{}, &points)
	return points
}

func (g *GridSearch) collect(depth int, current map[string]float64, points *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*points = append(*points, current)
		return
	}
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[g.paramNames[depth]] = val
		g.collect(depth+1, next, points)
	}
}

// Search solves every grid point and returns the parameters giving the
// smallest value of output. Failed points are reported in the returned
// slice and skipped; Search fails only when no point succeeds.
func (g *GridSearch) Search(ctx context.Context, build BuildFunc, output string) (map[string]float64, float64, []Point, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	params := g.Points()
	points := make([]Point, len(params))

	workers := g.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i := range params {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			points[idx] = Point{Params: params[idx]}
			points[idx].Value, points[idx].Err = evaluate(ctx, build, params[idx], output)
		}(i)
	}

	wg.Wait()

	best := math.Inf(1)
	var bestParams map[string]float64
	var errs []error
	for _, p := range points {
		if p.Err != nil {
			errs = append(errs, p.Err)
			continue
		}
		if p.Value < best {
			best = p.Value
			bestParams = p.Params
		}
	}
	if bestParams == nil {
		return nil, 0, points, fmt.Errorf("optim: no grid point succeeded: %w", errors.Join(errs...))
	}

	return bestParams, best, points, nil
}

func evaluate(ctx context.Context, build BuildFunc, params map[string]float64, output string) (float64, error) {
	exp, err := build(params)
	if err != nil {
		return 0, err
	}
	if _, err := exp.Run(ctx); err != nil {
		return 0, err
	}
	values, err := exp.Outputs()
	if err != nil {
		return 0, err
	}
	val, ok := values[output]
	if !ok {
		return 0, fmt.Errorf("optim: experiment has no output %q", output)
	}
	return val, nil
}

package storage

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"

	"github.com/san-kum/multiphys/internal/sim"
)

// StateLogger streams state snapshots into a run's states.csv through
// solver hooks: the initial state, every Every-th accepted step, and
// the final state.
type StateLogger struct {
	Every int

	file    *os.File
	w       *csv.Writer
	t0      float64
	last    int
	started bool
}

// NewStateLogger opens states.csv in the run directory. t0 is the time
// recorded for the initial state.
func (s *Store) NewStateLogger(runID string, t0 float64, every int) (*StateLogger, error) {
	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, "states.csv"))
	if err != nil {
		return nil, err
	}
	if every < 1 {
		every = 1
	}
	return &StateLogger{Every: every, file: f, w: csv.NewWriter(f), t0: t0, last: -1}, nil
}

func (l *StateLogger) write(t float64, state []float64) error {
	if !l.started {
		if err := l.w.Write(header(len(state))); err != nil {
			return err
		}
		l.started = true
	}
	return l.w.Write(row(t, state))
}

func (l *StateLogger) Hooks() sim.Hooks {
	return sim.Hooks{
		Initial: func(state []float64) error {
			return l.write(l.t0, state)
		},
		Iteration: func(iter int, t, _ float64, state []float64) error {
			if (iter+1)%l.Every != 0 {
				return nil
			}
			l.last = iter
			return l.write(t, state)
		},
		Terminal: func(iter int, t float64, state []float64) error {
			// The final step is already logged when it fell on Every.
			if iter > 0 && l.last == iter-1 {
				l.w.Flush()
				return l.w.Error()
			}
			if err := l.write(t, state); err != nil {
				return err
			}
			l.w.Flush()
			return l.w.Error()
		},
	}
}

func (l *StateLogger) Close() error {
	l.w.Flush()
	return errors.Join(l.w.Error(), l.file.Close())
}

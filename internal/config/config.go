package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/multiphys/internal/linalg"
)

const (
	DefaultDt           = 0.01
	DefaultTFinal       = 1.0
	DefaultCFL          = 1.0
	DefaultMaxSteps     = 10000
	DefaultResExp       = 2.0
	DefaultSteadyAbsTol = 1e-12
	DefaultSteadyRelTol = 1e-10
	DefaultNewtonIter   = 100
	DefaultNewtonTol    = 1e-14
	DefaultDivFactor    = 1e10
	DefaultKDim         = 100
)

// ErrConfiguration is wrapped by every ConfigurationError.
var ErrConfiguration = errors.New("config: invalid configuration")

// ConfigurationError names the offending key path.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func invalid(key, format string, args ...any) error {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

type Config struct {
	Problem        string             `yaml:"problem"`
	Silent         bool               `yaml:"silent"`
	Debug          []string           `yaml:"debug,omitempty"`
	TimeDis        TimeDis            `yaml:"time-dis"`
	NonlinSolver   NonlinSolver       `yaml:"nonlin-solver"`
	LinSolver      LinearSolver       `yaml:"lin-solver"`
	LinPrec        Preconditioner     `yaml:"lin-prec"`
	AdjSolver      LinearSolver       `yaml:"adj-solver"`
	AdjPrec        Preconditioner     `yaml:"adj-prec"`
	ProblemOptions Options            `yaml:"problem-options,omitempty"`
	Inputs         map[string]float64 `yaml:"inputs,omitempty"`
	Outputs        map[string]Options `yaml:"outputs,omitempty"`
}

type TimeDis struct {
	Type         string  `yaml:"type"`
	Steady       bool    `yaml:"steady"`
	SteadyAbsTol float64 `yaml:"steady-abstol"`
	SteadyRelTol float64 `yaml:"steady-reltol"`
	ResExp       float64 `yaml:"res-exp"`
	ConstCFL     bool    `yaml:"const-cfl"`
	ExactTFinal  bool    `yaml:"exact-t-final"`
	TInitial     float64 `yaml:"t-initial"`
	TFinal       float64 `yaml:"t-final"`
	Dt           float64 `yaml:"dt"`
	CFL          float64 `yaml:"cfl"`
	MaxIter      int     `yaml:"max-iter"`
	AbsTol       float64 `yaml:"abstol"`
	RelTol       float64 `yaml:"reltol"`
	Retry        Retry   `yaml:"retry"`

	// Continuation globalizes the NEWTON scheme with pseudo-time steps
	// starting from dt and growing with res-exp.
	Continuation bool `yaml:"continuation"`
}

// Retry controls step-size backoff after a failed time step. MaxRetries
// of zero makes any failed step fatal.
type Retry struct {
	MaxRetries int     `yaml:"max-retries"`
	Factor     float64 `yaml:"factor"`
	MinDt      float64 `yaml:"min-dt"`
}

type NonlinSolver struct {
	Type       string     `yaml:"type"`
	PrintLevel int        `yaml:"printlevel"`
	MaxIter    int        `yaml:"maxiter"`
	RelTol     float64    `yaml:"reltol"`
	AbsTol     float64    `yaml:"abstol"`
	Abort      bool       `yaml:"abort"`
	DivFactor  float64    `yaml:"div-factor"`
	LineSearch LineSearch `yaml:"linesearch"`
}

type LineSearch struct {
	Type    string  `yaml:"type"`
	Mu      float64 `yaml:"mu"`
	RhoLo   float64 `yaml:"rho-lo"`
	RhoHi   float64 `yaml:"rho-hi"`
	MaxIter int     `yaml:"maxiter"`
}

type LinearSolver struct {
	Type       string  `yaml:"type"`
	PrintLevel int     `yaml:"printlevel"`
	MaxIter    int     `yaml:"maxiter"`
	RelTol     float64 `yaml:"reltol"`
	AbsTol     float64 `yaml:"abstol"`
	KDim       int     `yaml:"kdim"`
}

type Preconditioner struct {
	Type string `yaml:"type"`
}

func DefaultConfig() *Config {
	return &Config{
		TimeDis: TimeDis{
			Type:         "RK4",
			SteadyAbsTol: DefaultSteadyAbsTol,
			SteadyRelTol: DefaultSteadyRelTol,
			ResExp:       DefaultResExp,
			ExactTFinal:  true,
			TFinal:       DefaultTFinal,
			Dt:           DefaultDt,
			CFL:          DefaultCFL,
			MaxIter:      DefaultMaxSteps,
			AbsTol:       1e-8,
			RelTol:       1e-6,
			Retry:        Retry{Factor: 0.5, MinDt: 1e-12},
		},
		NonlinSolver: NonlinSolver{
			Type:       "newton",
			PrintLevel: 1,
			MaxIter:    DefaultNewtonIter,
			RelTol:     DefaultNewtonTol,
			AbsTol:     DefaultNewtonTol,
			Abort:      true,
			DivFactor:  DefaultDivFactor,
			LineSearch: LineSearch{Type: "none", Mu: 1e-4, RhoLo: 0.1, RhoHi: 0.9, MaxIter: 10},
		},
		LinSolver: LinearSolver{Type: "gmres", MaxIter: 100, RelTol: 1e-12, AbsTol: 1e-12, KDim: DefaultKDim},
		LinPrec:   Preconditioner{Type: "jacobi"},
		AdjSolver: LinearSolver{Type: "gmres", MaxIter: 100, RelTol: 1e-8, AbsTol: 1e-10, KDim: DefaultKDim},
		AdjPrec:   Preconditioner{Type: "jacobi"},
	}
}

// Parse decodes YAML onto the defaults. Unrecognized keys are ignored.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := ParseOnto(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseOnto decodes YAML over cfg. Only keys present in data change cfg,
// so false and zero values are applied; maps are merged key by key. On
// error cfg is left untouched.
func ParseOnto(data []byte, cfg *Config) error {
	out := cfg.Clone()
	if err := yaml.Unmarshal(data, out); err != nil {
		return &ConfigurationError{Key: "yaml", Reason: err.Error()}
	}
	*cfg = *out
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOnto reads a file and layers it over cfg with ParseOnto.
func LoadOnto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := ParseOnto(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Merge layers overrides onto dst, later overrides winning. Zero values
// in an override leave dst unchanged.
func Merge(dst *Config, overrides ...*Config) error {
	for _, o := range overrides {
		if o == nil {
			continue
		}
		if err := mergo.Merge(dst, o, mergo.WithOverride); err != nil {
			return fmt.Errorf("config: merge: %w", err)
		}
	}
	return nil
}

// Clone deep-copies the configuration through YAML.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		return c
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return c
	}
	return out
}

var (
	schemes     = []string{"RK1", "RK4", "RK45", "MIDPOINT", "PTC", "NEWTON"}
	linearTypes = []string{"lu", "direct", "gmres"}
	precTypes   = []string{"none", "identity", "jacobi"}
	searchTypes = []string{"none", "backtracking"}
	nonlinTypes = []string{"newton"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate reports the first missing or invalid key.
func (c *Config) Validate() error {
	if c.Problem == "" {
		return invalid("problem", "required key is missing")
	}
	if err := c.TimeDis.validate(); err != nil {
		return err
	}
	if err := c.NonlinSolver.validate(); err != nil {
		return err
	}
	if err := c.LinSolver.validate("lin-solver"); err != nil {
		return err
	}
	if err := c.AdjSolver.validate("adj-solver"); err != nil {
		return err
	}
	if !oneOf(c.LinPrec.Type, precTypes) {
		return invalid("lin-prec.type", "unknown preconditioner %q", c.LinPrec.Type)
	}
	if !oneOf(c.AdjPrec.Type, precTypes) {
		return invalid("adj-prec.type", "unknown preconditioner %q", c.AdjPrec.Type)
	}
	return nil
}

func (t TimeDis) validate() error {
	switch {
	case !oneOf(t.Type, schemes):
		return invalid("time-dis.type", "unknown scheme %q", t.Type)
	case (strings.EqualFold(t.Type, "PTC") || strings.EqualFold(t.Type, "NEWTON")) && !t.Steady:
		return invalid("time-dis.steady", "%s requires a steady problem", t.Type)
	case t.Dt <= 0:
		return invalid("time-dis.dt", "must be positive, got %g", t.Dt)
	case t.TFinal <= t.TInitial:
		return invalid("time-dis.t-final", "must exceed t-initial (%g), got %g", t.TInitial, t.TFinal)
	case t.MaxIter <= 0:
		return invalid("time-dis.max-iter", "must be positive, got %d", t.MaxIter)
	case t.ConstCFL && t.CFL <= 0:
		return invalid("time-dis.cfl", "const-cfl needs a positive cfl, got %g", t.CFL)
	case t.ResExp < 0:
		return invalid("time-dis.res-exp", "must be non-negative, got %g", t.ResExp)
	case t.SteadyAbsTol < 0 || t.SteadyRelTol < 0:
		return invalid("time-dis.steady-abstol", "steady tolerances must be non-negative")
	case t.Retry.MaxRetries < 0:
		return invalid("time-dis.retry.max-retries", "must be non-negative, got %d", t.Retry.MaxRetries)
	case t.Retry.MaxRetries > 0 && (t.Retry.Factor <= 0 || t.Retry.Factor >= 1):
		return invalid("time-dis.retry.factor", "must be in (0, 1), got %g", t.Retry.Factor)
	}
	return nil
}

func (n NonlinSolver) validate() error {
	switch {
	case !oneOf(n.Type, nonlinTypes):
		return invalid("nonlin-solver.type", "unknown solver %q", n.Type)
	case n.MaxIter <= 0:
		return invalid("nonlin-solver.maxiter", "must be positive, got %d", n.MaxIter)
	case n.RelTol < 0:
		return invalid("nonlin-solver.reltol", "must be non-negative, got %g", n.RelTol)
	case n.AbsTol < 0:
		return invalid("nonlin-solver.abstol", "must be non-negative, got %g", n.AbsTol)
	case n.DivFactor <= 1:
		return invalid("nonlin-solver.div-factor", "must exceed 1, got %g", n.DivFactor)
	case !oneOf(n.LineSearch.Type, searchTypes):
		return invalid("nonlin-solver.linesearch.type", "unknown line search %q", n.LineSearch.Type)
	}
	ls := n.LineSearch
	if strings.EqualFold(ls.Type, "backtracking") {
		switch {
		case ls.Mu <= 0 || ls.Mu >= 1:
			return invalid("nonlin-solver.linesearch.mu", "must be in (0, 1), got %g", ls.Mu)
		case ls.RhoLo <= 0 || ls.RhoHi >= 1 || ls.RhoLo > ls.RhoHi:
			return invalid("nonlin-solver.linesearch.rho-lo", "need 0 < rho-lo <= rho-hi < 1")
		case ls.MaxIter <= 0:
			return invalid("nonlin-solver.linesearch.maxiter", "must be positive, got %d", ls.MaxIter)
		}
	}
	return nil
}

func (l LinearSolver) validate(group string) error {
	switch {
	case !oneOf(l.Type, linearTypes):
		return invalid(group+".type", "unknown solver %q", l.Type)
	case l.MaxIter <= 0:
		return invalid(group+".maxiter", "must be positive, got %d", l.MaxIter)
	case strings.EqualFold(l.Type, "gmres") && l.KDim <= 0:
		return invalid(group+".kdim", "must be positive, got %d", l.KDim)
	case l.RelTol < 0 || l.AbsTol < 0:
		return invalid(group+".reltol", "tolerances must be non-negative")
	}
	return nil
}

func (l LinearSolver) options(prec Preconditioner) linalg.Options {
	return linalg.Options{
		Type:    l.Type,
		MaxIter: l.MaxIter,
		KDim:    l.KDim,
		RelTol:  l.RelTol,
		AbsTol:  l.AbsTol,
		Prec:    prec.Type,
	}
}

// LinearOptions selects the solver for Newton updates.
func (c *Config) LinearOptions() linalg.Options {
	return c.LinSolver.options(c.LinPrec)
}

// AdjointOptions selects the solver for transposed adjoint systems.
func (c *Config) AdjointOptions() linalg.Options {
	return c.AdjSolver.options(c.AdjPrec)
}

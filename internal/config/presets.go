package config

import "sort"

func preset(problem string, apply func(c *Config)) *Config {
	c := DefaultConfig()
	c.Problem = problem
	apply(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"linear": {
		"newton": preset("linear", func(c *Config) {
			c.TimeDis.Type = "NEWTON"
			c.TimeDis.Steady = true
			c.NonlinSolver.AbsTol = 1e-10
			c.NonlinSolver.RelTol = 1e-10
			c.LinSolver.Type = "lu"
			c.Inputs = map[string]float64{"a": 3, "b": 6}
		}),
	},
	"decay": {
		"rk4": preset("decay", func(c *Config) {
			c.TimeDis.Type = "RK4"
			c.TimeDis.Dt = 0.01
			c.TimeDis.TFinal = 1.0
			c.Inputs = map[string]float64{"lambda": 1}
		}),
		"midpoint": preset("decay", func(c *Config) {
			c.TimeDis.Type = "MIDPOINT"
			c.TimeDis.Dt = 0.05
			c.TimeDis.TFinal = 2.0
			c.LinSolver.Type = "lu"
			c.NonlinSolver.AbsTol = 1e-12
			c.Inputs = map[string]float64{"lambda": 1}
		}),
		"cfl": preset("decay", func(c *Config) {
			c.TimeDis.Type = "RK4"
			c.TimeDis.ConstCFL = true
			c.TimeDis.CFL = 0.1
			c.TimeDis.TFinal = 1.0
			c.Inputs = map[string]float64{"lambda": 4}
		}),
	},
	"heat": {
		"steady": preset("heat", func(c *Config) {
			c.TimeDis.Type = "PTC"
			c.TimeDis.Steady = true
			c.TimeDis.Dt = 1e-3
			c.TimeDis.TFinal = 1e6
			c.TimeDis.MaxIter = 200
			c.LinSolver.Type = "lu"
			c.NonlinSolver.AbsTol = 1e-10
			c.NonlinSolver.RelTol = 1e-12
			c.ProblemOptions = Options{"nodes": 20, "length": 1.0, "beta": 0.5}
			c.Inputs = map[string]float64{"heat_source": 10, "conductivity": 1}
			c.Outputs = map[string]Options{"average": {}, "ks-max": {"rho": 50}}
		}),
		"transient": preset("heat", func(c *Config) {
			c.TimeDis.Type = "MIDPOINT"
			c.TimeDis.Dt = 0.01
			c.TimeDis.TFinal = 0.5
			c.LinSolver.Type = "lu"
			c.NonlinSolver.AbsTol = 1e-10
			c.ProblemOptions = Options{"nodes": 20, "length": 1.0, "beta": 0.5}
			c.Inputs = map[string]float64{"heat_source": 10, "conductivity": 1}
			c.Outputs = map[string]Options{"average": {}}
		}),
	},
	"joule": {
		"steady": preset("joule", func(c *Config) {
			c.TimeDis.Type = "PTC"
			c.TimeDis.Steady = true
			c.TimeDis.Dt = 1e-3
			c.TimeDis.TFinal = 1e6
			c.TimeDis.MaxIter = 200
			c.LinSolver.Type = "gmres"
			c.NonlinSolver.AbsTol = 1e-10
			c.NonlinSolver.RelTol = 1e-12
			c.NonlinSolver.LineSearch.Type = "backtracking"
			c.ProblemOptions = Options{"nodes": 30, "length": 1.0, "beta": 0.2, "sigma": 2.0}
			c.Inputs = map[string]float64{"heat_source": 0, "conductivity": 1, "current_density": 3}
			c.Outputs = map[string]Options{"average": {}, "ks-max": {"rho": 40}}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(problem, name string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	cfg, ok := problemPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Problems lists the problems that have presets.
func Problems() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

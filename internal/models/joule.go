package models

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/vec"
)

// JouleLoad is the resistive heating L_i = −(J²/σ)·V_i for a uniform
// current density J in a conductor of electrical conductivity σ.
type JouleLoad struct {
	n      int
	length float64
	sigma  float64
	defJ   float64
	mesh   []float64

	x   []float64
	j   float64
	vol []float64
}

func NewJouleLoad(n int) *JouleLoad {
	l := &JouleLoad{n: n, length: 1, sigma: 1}
	l.reset()
	return l
}

func (l *JouleLoad) reset() {
	l.mesh = UniformMesh(l.n, l.length)
	l.x, l.j = l.mesh, l.defJ
	l.vol = make([]float64, l.n)
	Volumes(l.x, l.vol)
}

func (l *JouleLoad) Size() int { return l.n }

func (l *JouleLoad) SetOptions(opts config.Options) error {
	n, err := opts.Int("nodes", l.n)
	if err != nil {
		return err
	}
	length, err := opts.Float("length", l.length)
	if err != nil {
		return err
	}
	sigma, err := opts.Float("sigma", l.sigma)
	if err != nil {
		return err
	}
	if sigma <= 0 {
		return &config.ConfigurationError{Key: "sigma", Reason: fmt.Sprintf("must be positive, got %g", sigma)}
	}
	if l.defJ, err = opts.Float(CurrentDensity, l.defJ); err != nil {
		return err
	}
	l.n, l.length, l.sigma = n, length, sigma
	l.reset()
	return nil
}

func (l *JouleLoad) SetInputs(in *inputs.Bag) error {
	x, err := meshFrom(in, l.mesh, l.n)
	if err != nil {
		return err
	}
	l.x, l.j = x, l.defJ
	if _, err := in.ScalarInto(CurrentDensity, &l.j); err != nil {
		return err
	}
	Volumes(l.x, l.vol)
	return nil
}

func (l *JouleLoad) AddLoad(_ *inputs.Bag, tv []float64) error {
	c := l.j * l.j / l.sigma
	for i, v := range l.vol {
		tv[i] -= c * v
	}
	return nil
}

func (l *JouleLoad) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	switch wrt {
	case CurrentDensity:
		c := 2 * l.j / l.sigma * wrtDot[0]
		for i, v := range l.vol {
			resDot[i] -= c * v
		}
	case MeshCoords:
		if len(wrtDot) != l.n+2 {
			return fmt.Errorf("%w: d%s has %d entries, want %d", vec.ErrDimensionMismatch, wrt, len(wrtDot), l.n+2)
		}
		dv := make([]float64, l.n)
		addVolumeJVP(wrtDot, dv)
		c := l.j * l.j / l.sigma
		for i, d := range dv {
			resDot[i] -= c * d
		}
	}
	return nil
}

func (l *JouleLoad) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	switch wrt {
	case CurrentDensity:
		c := 2 * l.j / l.sigma
		for i, v := range l.vol {
			wrtBar[0] -= c * v * resBar[i]
		}
	case MeshCoords:
		if len(wrtBar) != l.n+2 {
			return fmt.Errorf("%w: %s bar has %d entries, want %d", vec.ErrDimensionMismatch, wrt, len(wrtBar), l.n+2)
		}
		c := l.j * l.j / l.sigma
		vBar := make([]float64, l.n)
		for i, r := range resBar {
			vBar[i] = -c * r
		}
		addVolumeVJP(vBar, wrtBar)
	}
	return nil
}

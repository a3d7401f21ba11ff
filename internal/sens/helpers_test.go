package sens

import (
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

// cubic is R(u) = A·u + c·u³ − p with scalar c and field p.
type cubic struct {
	a *linalg.Dense
	u []float64
	c float64
	p []float64

	// transposeBug makes the state VJP use A instead of Aᵀ.
	transposeBug bool
}

func newCubic() *cubic {
	return &cubic{a: linalg.DenseFrom(3, 3, []float64{
		4, -1, 0.5,
		-2, 5, -1,
		0, -1.5, 3,
	})}
}

func (m *cubic) Size() int { return 3 }

func (m *cubic) SetInputs(in *inputs.Bag) error {
	var err error
	if m.u, err = in.Field(inputs.State); err != nil {
		return err
	}
	if m.c, err = in.Scalar("c"); err != nil {
		return err
	}
	m.p, err = in.Field("p")
	return err
}

func (m *cubic) Evaluate(_ *inputs.Bag, res []float64) error {
	m.a.MulVec(res, m.u)
	for i := range res {
		res[i] += m.c*m.u[i]*m.u[i]*m.u[i] - m.p[i]
	}
	return nil
}

func (m *cubic) Jacobian(_ *inputs.Bag, wrt string) (linalg.Operator, error) {
	j := linalg.NewDense(3, 3)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			j.Set(i, k, m.a.At(i, k))
		}
		j.AddAt(i, i, 3*m.c*m.u[i]*m.u[i])
	}
	return j, nil
}

func (m *cubic) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	switch wrt {
	case inputs.State:
		tmp := make([]float64, 3)
		m.a.MulVec(tmp, wrtDot)
		for i := range resDot {
			resDot[i] += tmp[i] + 3*m.c*m.u[i]*m.u[i]*wrtDot[i]
		}
	case "c":
		for i := range resDot {
			resDot[i] += m.u[i] * m.u[i] * m.u[i] * wrtDot[0]
		}
	case "p":
		for i := range resDot {
			resDot[i] -= wrtDot[i]
		}
	}
	return nil
}

func (m *cubic) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	switch wrt {
	case inputs.State:
		tmp := make([]float64, 3)
		if m.transposeBug {
			m.a.MulVec(tmp, resBar)
		} else {
			m.a.MulVecTrans(tmp, resBar)
		}
		for i := range wrtBar {
			wrtBar[i] += tmp[i] + 3*m.c*m.u[i]*m.u[i]*resBar[i]
		}
	case "c":
		for i := range resBar {
			wrtBar[0] += m.u[i] * m.u[i] * m.u[i] * resBar[i]
		}
	case "p":
		for i := range wrtBar {
			wrtBar[i] -= resBar[i]
		}
	}
	return nil
}

// weighted is J = g·u + ½|p|².
type weighted struct {
	g []float64
	u []float64
	p []float64
}

func (w *weighted) SetInputs(in *inputs.Bag) error {
	var err error
	if w.u, err = in.Field(inputs.State); err != nil {
		return err
	}
	w.p, err = in.Field("p")
	return err
}

func (w *weighted) CalcOutput(in *inputs.Bag) (float64, error) {
	j := 0.0
	for i := range w.u {
		j += w.g[i]*w.u[i] + 0.5*w.p[i]*w.p[i]
	}
	return j, nil
}

func (w *weighted) JacobianVectorProduct(wrtDot []float64, wrt string) (float64, error) {
	dj := 0.0
	switch wrt {
	case inputs.State:
		for i := range wrtDot {
			dj += w.g[i] * wrtDot[i]
		}
	case "p":
		for i := range wrtDot {
			dj += w.p[i] * wrtDot[i]
		}
	}
	return dj, nil
}

func (w *weighted) VectorJacobianProduct(outBar float64, wrt string, wrtBar []float64) error {
	switch wrt {
	case inputs.State:
		for i := range wrtBar {
			wrtBar[i] += outBar * w.g[i]
		}
	case "p":
		for i := range wrtBar {
			wrtBar[i] += outBar * w.p[i]
		}
	}
	return nil
}

func testBag(u []float64) *inputs.Bag {
	return inputs.New().
		SetField(inputs.State, u).
		SetScalar("c", 0.3).
		SetField("p", []float64{1, -2, 0.5})
}

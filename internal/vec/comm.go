package vec

import "math"

// Comm performs reductions across the processes that each own a
// partition of a state vector. Every call is a synchronization point.
type Comm interface {
	Rank() int
	Size() int
	SumAll(x float64) float64
	MaxAll(x float64) float64
}

type selfComm struct{}

// Self is the Comm of a single-process run.
var Self Comm = selfComm{}

func (selfComm) Rank() int                 { return 0 }
func (selfComm) Size() int                 { return 1 }
func (selfComm) SumAll(x float64) float64 { return x }
func (selfComm) MaxAll(x float64) float64 { return x }

// GlobalNorm is the Euclidean norm of a partitioned vector.
func GlobalNorm(c Comm, v Vector) float64 {
	local := v.Norm()
	return math.Sqrt(c.SumAll(local * local))
}

// GlobalDot is the inner product of two partitioned vectors.
func GlobalDot(c Comm, a, b Vector) float64 {
	return c.SumAll(a.Dot(b))
}

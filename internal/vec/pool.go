package vec

import "sync"

// Pool recycles scratch vectors of one fixed length.
type Pool struct {
	pool sync.Pool
	size int
}

func NewPool(size int) *Pool {
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make(Vector, size)
			},
		},
	}
}

func (p *Pool) Size() int { return p.size }

func (p *Pool) Get() Vector {
	return p.pool.Get().(Vector)
}

func (p *Pool) Put(v Vector) {
	if len(v) == p.size {
		v.Zero()
		p.pool.Put(v)
	}
}

func (p *Pool) GetAndCopy(src Vector) Vector {
	dst := p.Get()
	copy(dst, src)
	return dst
}

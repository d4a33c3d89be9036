package trainer

import "github.com/chewxy/math32"

// Adam keeps first and second moment estimates for a fixed set of parameter
// blocks. Its state is only meaningful for the shapes it was built with, so a
// structural change to the model requires a new Adam.
type Adam struct {
	LR    float32
	Beta1 float32 // Typically 0.9
	Beta2 float32 // Typically 0.999
	Eps   float32
	T     int // Timestep (for bias correction)

	m, v [][]float32
}

// NewAdam builds zeroed moments shaped like params.
func NewAdam(lr float32, params [][]float32) *Adam {
	a := &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make([][]float32, len(params)),
		v:     make([][]float32, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float32, len(p))
		a.v[i] = make([]float32, len(p))
	}
	return a
}

// Tracks reports whether the moments match the shapes of params.
func (a *Adam) Tracks(params [][]float32) bool {
	if len(params) != len(a.m) {
		return false
	}
	for i, p := range params {
		if len(p) != len(a.m[i]) {
			return false
		}
	}
	return true
}

// Step applies one update in place. grads must be shaped like params.
func (a *Adam) Step(params, grads [][]float32) {
	a.T++

	// Bias correction factors
	bc1 := 1 - math32.Pow(a.Beta1, float32(a.T))
	bc2 := 1 - math32.Pow(a.Beta2, float32(a.T))

	for b, block := range params {
		m, v, g := a.m[b], a.v[b], grads[b]
		for i := range block {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g[i]
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g[i]*g[i]

			mHat := m[i] / bc1
			vHat := v[i] / bc2
			block[i] -= a.LR * mHat / (math32.Sqrt(vHat) + a.Eps)
		}
	}
}

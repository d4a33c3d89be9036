package trainer

import (
	"github.com/chewxy/math32"
	"lukechampine.com/frand"
)

// Dense is a fully connected layer. W holds Out rows of In weights.
type Dense struct {
	In, Out int
	W       []float32
	B       []float32
}

func newDense(in, out int, rng *frand.RNG) Dense {
	d := Dense{
		In:  in,
		Out: out,
		W:   make([]float32, in*out),
		B:   make([]float32, out),
	}
	for j := 0; j < out; j++ {
		initUnit(d.row(j), &d.B[j], in, out, rng)
	}
	return d
}

func (d Dense) row(j int) []float32 {
	return d.W[j*d.In : (j+1)*d.In]
}

// Grow returns a copy of d that is one unit wider. Existing weights and
// biases are copied verbatim and d itself is left untouched; the new unit is
// initialized as a fresh unit of a layer of the new width.
func (d Dense) Grow(rng *frand.RNG) Dense {
	out := d.Out + 1
	g := Dense{
		In:  d.In,
		Out: out,
		W:   make([]float32, out*d.In),
		B:   make([]float32, out),
	}
	copy(g.W, d.W)
	copy(g.B, d.B)
	initUnit(g.row(d.Out), &g.B[d.Out], d.In, out, rng)
	return g
}

// initUnit draws Glorot-uniform weights for one unit and a bias uniform in
// ±1/sqrt(fanIn).
func initUnit(w []float32, b *float32, fanIn, fanOut int, rng *frand.RNG) {
	limit := math32.Sqrt(6 / float32(fanIn+fanOut))
	for i := range w {
		w[i] = uniform(rng, limit)
	}
	*b = uniform(rng, 1/math32.Sqrt(float32(fanIn)))
}

func uniform(rng *frand.RNG, limit float32) float32 {
	return float32(rng.Float64()*2-1) * limit
}

// forward writes W·x+B into y. Zero inputs are skipped, encoded boards are sparse.
func (d Dense) forward(x, y []float32) {
	for j := 0; j < d.Out; j++ {
		s := d.B[j]
		row := d.row(j)
		for i, xi := range x {
			if xi != 0 {
				s += row[i] * xi
			}
		}
		y[j] = s
	}
}

// Policy maps an encoded board to logits over the move vocabulary:
// a ReLU hidden layer followed by a growable classification head.
type Policy struct {
	Hidden Dense
	Head   Dense
}

// NewPolicy returns a freshly initialized policy.
func NewPolicy(in, hidden, classes int, rng *frand.RNG) *Policy {
	return &Policy{
		Hidden: newDense(in, hidden, rng),
		Head:   newDense(hidden, classes, rng),
	}
}

// Inputs returns the expected encoded-board length.
func (p *Policy) Inputs() int { return p.Hidden.In }

// Classes returns the width of the classification head.
func (p *Policy) Classes() int { return p.Head.Out }

// params lists parameter blocks in a fixed order shared with the optimizer.
func (p *Policy) params() [][]float32 {
	return [][]float32{p.Hidden.W, p.Hidden.B, p.Head.W, p.Head.B}
}

type activations struct {
	x      []float32
	pre    []float32
	h      []float32
	logits []float32
}

func (p *Policy) forward(x []float32) activations {
	a := activations{
		x:      x,
		pre:    make([]float32, p.Hidden.Out),
		h:      make([]float32, p.Hidden.Out),
		logits: make([]float32, p.Head.Out),
	}
	p.Hidden.forward(x, a.pre)
	for i, v := range a.pre {
		if v > 0 {
			a.h[i] = v
		}
	}
	p.Head.forward(a.h, a.logits)
	return a
}

// Logits evaluates the policy on one encoded board.
func (p *Policy) Logits(x []float32) []float32 {
	return p.forward(x).logits
}

// gradients returns the weighted cross-entropy loss against target and the
// gradient of every parameter block, in params() order.
func (p *Policy) gradients(x []float32, target int, weight float32) (float32, [][]float32) {
	a := p.forward(x)
	probs, logZ := softmax(a.logits)
	loss := weight * (logZ - a.logits[target])

	// dL/dlogits = w * (softmax - onehot)
	dlogits := probs
	for j := range dlogits {
		dlogits[j] *= weight
	}
	dlogits[target] -= weight

	head, hidden := p.Head, p.Hidden
	dHeadW := make([]float32, len(head.W))
	dHeadB := make([]float32, len(head.B))
	dh := make([]float32, hidden.Out)
	for j, g := range dlogits {
		dHeadB[j] = g
		row := head.row(j)
		grow := dHeadW[j*head.In : (j+1)*head.In]
		for i, hi := range a.h {
			grow[i] = g * hi
			dh[i] += g * row[i]
		}
	}

	dHidW := make([]float32, len(hidden.W))
	dHidB := make([]float32, len(hidden.B))
	for j := 0; j < hidden.Out; j++ {
		if a.pre[j] <= 0 {
			continue
		}
		g := dh[j]
		dHidB[j] = g
		grow := dHidW[j*hidden.In : (j+1)*hidden.In]
		for i, xi := range x {
			if xi != 0 {
				grow[i] = g * xi
			}
		}
	}

	return loss, [][]float32{dHidW, dHidB, dHeadW, dHeadB}
}

// softmax returns the probabilities and log of the partition function.
func softmax(logits []float32) ([]float32, float32) {
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		probs[i] = math32.Exp(v - maxv)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, maxv + math32.Log(sum)
}

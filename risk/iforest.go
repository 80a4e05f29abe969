package risk

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

// averagePathLength is c(n), the mean unsuccessful-search path length of a
// binary search tree over n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

type inode struct {
	leaf    bool
	size    int // leaf only
	feature int
	split   float64
	lo, hi  float64 // observed range of feature at this node
	left    int32
	right   int32
}

type itree struct {
	nodes []inode
}

// isolationForest is an ensemble of random partitioning trees.
type isolationForest struct {
	trees      []itree
	sampleSize int
}

func fitForest(data [][]float64, trees, sampleSize int, rng *rand.Rand) *isolationForest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))
	f := &isolationForest{trees: make([]itree, trees), sampleSize: sampleSize}
	for t := range f.trees {
		perm := rng.Perm(len(data))[:sampleSize]
		rows := make([][]float64, sampleSize)
		for i, idx := range perm {
			rows[i] = data[idx]
		}
		var tr itree
		tr.grow(rows, 0, heightLimit, rng)
		f.trees[t] = tr
	}
	return f
}

// grow appends the subtree for rows and returns its index.
func (t *itree) grow(rows [][]float64, depth, limit int, rng *rand.Rand) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, inode{leaf: true, size: len(rows)})
	if depth >= limit || len(rows) <= 1 {
		return idx
	}

	// Only features that still vary can split this node.
	dims := len(rows[0])
	candidates := make([]int, 0, dims)
	los := make([]float64, dims)
	his := make([]float64, dims)
	for j := 0; j < dims; j++ {
		lo, hi := rows[0][j], rows[0][j]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[j])
			hi = math.Max(hi, r[j])
		}
		los[j], his[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return idx
	}

	feat := candidates[rng.Intn(len(candidates))]
	split := los[feat] + rng.Float64()*(his[feat]-los[feat])
	var left, right [][]float64
	for _, r := range rows {
		if r[feat] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := t.grow(left, depth+1, limit, rng)
	r := t.grow(right, depth+1, limit, rng)
	t.nodes[idx] = inode{
		feature: feat,
		split:   split,
		lo:      los[feat],
		hi:      his[feat],
		left:    l,
		right:   r,
	}
	return idx
}

// pathLength is the expected depth at which x is isolated. Where x lies
// outside a node's observed range, a split drawn uniformly over the range
// widened to include x would cut x off with probability gap/width; that
// chance of isolating here is folded into the expectation, so the score
// keeps growing as x moves further from the training data.
func (t *itree) pathLength(x []float64) float64 {
	var h float64
	survive := 1.0
	depth := 0
	n := t.nodes[0]
	for !n.leaf {
		v := x[n.feature]
		var p float64
		switch {
		case v < n.lo:
			p = (n.lo - v) / (n.hi - v)
		case v > n.hi:
			p = (v - n.hi) / (v - n.lo)
		}
		h += survive * p * float64(depth+1)
		survive *= 1 - p

		if v < n.split {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
		depth++
	}
	h += survive * (float64(depth) + averagePathLength(n.size))
	return h
}

// score returns 2^(-E[h(x)]/c(psi)); values near 1 are anomalous, values
// well below 0.5 are normal.
func (f *isolationForest) score(x []float64) float64 {
	var sum float64
	for i := range f.trees {
		sum += f.trees[i].pathLength(x)
	}
	mean := sum / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

package anomaly

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"spendscope/internal/core"
)

// IsolationForest is an unsupervised ensemble outlier model: points that
// random axis-aligned splits separate from the rest in few steps score
// high and are labeled anomalous. It needs no labeled data and no feature
// scaling, which suits the mixed amount/weekday/month vector.
type IsolationForest struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

const (
	defaultTrees         = 100
	defaultSampleSize    = 256
	DefaultContamination = 0.1
	DefaultSeed          = 42
)

var _ Detector = (*IsolationForest)(nil)

// NewIsolationForest returns a forest with the standard ensemble size and
// the given contamination rate and seed.
func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		Trees:         defaultTrees,
		SampleSize:    defaultSampleSize,
		Contamination: contamination,
		Seed:          seed,
	}
}

// FitAndLabel fits the forest over the full dataset and labels the
// expected-outlier fraction of records with the highest anomaly scores.
// Ties and ranking are deterministic given the seed: equal scores resolve
// by record position.
func (f *IsolationForest) FitAndLabel(ctx context.Context, expenses []core.Expense) ([]bool, error) {
	if len(expenses) == 0 {
		return nil, core.ErrEmptyDataset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Contamination <= 0 || f.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination %v out of range (0, 0.5]", f.Contamination)
	}
	trees := f.Trees
	if trees <= 0 {
		trees = defaultTrees
	}
	sampleSize := f.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if sampleSize > len(expenses) {
		sampleSize = len(expenses)
	}

	data := make([][3]float64, len(expenses))
	for i, e := range expenses {
		data[i] = features(e)
	}

	rng := rand.New(rand.NewSource(f.Seed))
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize) + 1)))

	forest := make([]*isoNode, trees)
	for i := range forest {
		sample := sampleIndexes(rng, len(data), sampleSize)
		forest[i] = buildTree(rng, data, sample, 0, heightLimit)
	}

	norm := avgPathLength(sampleSize)
	scores := make([]float64, len(data))
	for i, point := range data {
		var sum float64
		for _, tree := range forest {
			sum += pathLength(tree, point, 0)
		}
		scores[i] = math.Pow(2, -(sum/float64(trees))/norm)
	}

	labels := make([]bool, len(data))
	k := int(f.Contamination * float64(len(data)))
	if k == 0 {
		return labels, nil
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for _, idx := range order[:k] {
		labels[idx] = true
	}
	return labels, nil
}

// isoNode is one node of an isolation tree. Leaves carry the sample count
// that remained unseparated; internal nodes carry the split.
type isoNode struct {
	left, right  *isoNode
	splitFeature int
	splitValue   float64
	size         int
}

func sampleIndexes(rng *rand.Rand, n, size int) []int {
	if size >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return rng.Perm(n)[:size]
}

func buildTree(rng *rand.Rand, data [][3]float64, idx []int, depth, limit int) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	// Pick a feature that still varies within this node; if none does the
	// points are identical and cannot be separated further.
	var splittable []int
	var lo, hi [3]float64
	for fi := 0; fi < 3; fi++ {
		lo[fi], hi[fi] = data[idx[0]][fi], data[idx[0]][fi]
		for _, i := range idx[1:] {
			v := data[i][fi]
			if v < lo[fi] {
				lo[fi] = v
			}
			if v > hi[fi] {
				hi[fi] = v
			}
		}
		if hi[fi] > lo[fi] {
			splittable = append(splittable, fi)
		}
	}
	if len(splittable) == 0 {
		return &isoNode{size: len(idx)}
	}

	feature := splittable[rng.Intn(len(splittable))]
	value := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right []int
	for _, i := range idx {
		if data[i][feature] < value {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(idx)}
	}

	return &isoNode{
		splitFeature: feature,
		splitValue:   value,
		left:         buildTree(rng, data, left, depth+1, limit),
		right:        buildTree(rng, data, right, depth+1, limit),
	}
}

func pathLength(node *isoNode, point [3]float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if point[node.splitFeature] < node.splitValue {
		return pathLength(node.left, point, depth+1)
	}
	return pathLength(node.right, point, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points, used to normalize scores across sample sizes.
func avgPathLength(n int) float64 {
	switch {
	case n > 2:
		const eulerGamma = 0.5772156649
		h := math.Log(float64(n-1)) + eulerGamma
		return 2*h - 2*float64(n-1)/float64(n)
	case n == 2:
		return 1
	default:
		return 0
	}
}

package tensor

import (
	"math"
	"sort"
)

// Score is one ranked class.
type Score struct {
	Index       int     `json:"index"`
	Probability float32 `json:"probability"`
}

// TopK applies a softmax over the first batch row and returns the k most
// probable classes, highest first. k <= 0 returns every class.
func (d ClassData) TopK(k int) []Score {
	row := ToFloat32(d.arr)
	n := d.arr.Shape()[1]
	if n == 0 || row.Len() == 0 {
		return nil
	}
	logits := row.Data()[:n]

	peak := logits[0]
	for _, v := range logits[1:] {
		if v > peak {
			peak = v
		}
	}
	scores := make([]Score, n)
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - peak))
		scores[i] = Score{Index: i, Probability: float32(e)}
		sum += e
	}
	for i := range scores {
		scores[i].Probability = float32(float64(scores[i].Probability) / sum)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Probability > scores[j].Probability
	})
	if k > 0 && k < len(scores) {
		scores = scores[:k]
	}
	return scores
}

package vision

import (
	"slices"
	"sort"
)

// ScoreOrder returns the indices of scores sorted by descending score. Ties keep
// their original relative order.
func ScoreOrder(scores []float32) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// GreedyNMS is the serial suppression loop: visit boxes by descending score and
// keep a box unless its IoU with an already kept box exceeds threshold. The kept
// indices are returned in ascending order. The backends' parallel implementations
// must return exactly this.
func GreedyNMS(boxes []Box, scores []float32, threshold float32) []int {
	keep := make([]int, 0, len(boxes))
	for _, i := range ScoreOrder(scores) {
		suppressed := false
		for _, k := range keep {
			if boxes[i].IoU(boxes[k]) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, i)
		}
	}
	slices.Sort(keep)
	return keep
}

package cpu

import (
	"slices"

	"github.com/born-ml/vision/internal/logutil"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// nmsBlock is the number of boxes covered by one suppression mask word.
const nmsBlock = 64

// NMS performs non-maximum suppression over boxes [N, 5] (x1, y1, x2, y2, score).
//
// Boxes are sorted by descending score (stable on ties). Phase one is a launch with
// one unit per (box, column block): it sets bit j of the block's mask word when a
// later box j overlaps the unit's box by more than threshold. Phase two scans the
// sorted boxes once, keeping a box unless an already kept box has marked it.
//
// The returned indices refer to rows of boxes, in ascending order.
func (cpu *CPUBackend) NMS(boxes *tensor.RawTensor, threshold float32) ([]int, error) {
	const op = "nms"
	if err := vision.CheckBoxes(op, "boxes", boxes, 5); err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, boxes); err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := vision.ValidateThreshold(op, threshold); err != nil {
		return nil, cpu.fail(op, err)
	}

	n := boxes.Shape()[0]
	if n == 0 {
		return []int{}, nil
	}

	data := boxes.AsFloat32()
	scores := make([]float32, n)
	for i := range scores {
		scores[i] = data[i*5+4]
	}
	order := vision.ScoreOrder(scores)
	sorted := make([]vision.Box, n)
	for i, idx := range order {
		sorted[i] = vision.BoxAt(data, 5, idx)
	}

	blocks := (n + nmsBlock - 1) / nmsBlock
	mask := make([]uint64, n*blocks)
	cpu.launch(op, n*blocks, func(k int) {
		i, block := k/blocks, k%blocks
		start := max(block*nmsBlock, i+1)
		end := min((block+1)*nmsBlock, n)
		var word uint64
		for j := start; j < end; j++ {
			if sorted[i].IoU(sorted[j]) > threshold {
				word |= 1 << uint(j-block*nmsBlock)
			}
		}
		mask[k] = word
	})

	removed := make([]uint64, blocks)
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		block, bit := i/nmsBlock, uint(i%nmsBlock)
		if removed[block]&(1<<bit) != 0 {
			continue
		}
		keep = append(keep, order[i])
		row := mask[i*blocks : (i+1)*blocks]
		for b := block; b < blocks; b++ {
			removed[b] |= row[b]
		}
	}

	slices.Sort(keep)
	logutil.Trace(cpu.logger, "nms done", "boxes", n, "kept", len(keep))
	return keep, nil
}

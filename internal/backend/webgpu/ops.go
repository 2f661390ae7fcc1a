//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// nmsBlock is the number of boxes covered by one u32 mask word.
const nmsBlock = 32

// uniform packs kernel parameters in declaration order.
type uniform []byte

//nolint:gosec // G115: kernel parameters are validated sizes
func (u uniform) u32(v int) uniform { return binary.LittleEndian.AppendUint32(u, uint32(v)) }

//nolint:gosec // G115: kernel parameters are validated sizes
func (u uniform) i32(v int) uniform { return binary.LittleEndian.AppendUint32(u, uint32(int32(v))) }

func (u uniform) f32(v float32) uniform {
	return binary.LittleEndian.AppendUint32(u, math.Float32bits(v))
}

func boolFlag(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (b *Backend) fail(op string, err error) error {
	b.logger.Debug("rejected call", "op", op, "error", err)
	return err
}

// output wraps kernel results in a new tensor on this device.
func (b *Backend) output(op string, shape tensor.Shape, data []byte) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(shape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, b.fail(op, fmt.Errorf("%s: %w", op, err))
	}
	copy(out.Data(), data)
	return out, nil
}

// ROIAlign performs region pooling with bilinear sampling on the GPU.
func (b *Backend) ROIAlign(input, rois *tensor.RawTensor, cfg vision.PoolConfig) (*tensor.RawTensor, error) {
	const op = "roi_align"
	if err := b.checkPoolInputs(op, input, rois, cfg); err != nil {
		return nil, err
	}
	s := input.Shape()
	return b.pool(op, input, rois, cfg, s[1], false)
}

// PSROIAlign performs position-sensitive region pooling on the GPU.
func (b *Backend) PSROIAlign(input, rois *tensor.RawTensor, cfg vision.PoolConfig) (*tensor.RawTensor, error) {
	const op = "psroi_align"
	if err := b.checkPoolInputs(op, input, rois, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidatePS(op, input.Shape()[1]); err != nil {
		return nil, b.fail(op, err)
	}
	return b.pool(op, input, rois, cfg, cfg.OutChannels, true)
}

func (b *Backend) pool(op string, input, rois *tensor.RawTensor, cfg vision.PoolConfig, outChannels int, positionSensitive bool) (*tensor.RawTensor, error) {
	s := input.Shape()
	shape := tensor.Shape{rois.Shape()[0], outChannels, cfg.PooledH, cfg.PooledW}
	total := shape.NumElements()
	if total == 0 {
		return b.output(op, shape, nil)
	}

	params := uniform(nil).
		u32(total).
		u32(s[1]).
		i32(s[2]).
		i32(s[3]).
		u32(cfg.PooledH).
		u32(cfg.PooledW).
		i32(cfg.SamplingRatio).
		u32(outChannels).
		f32(cfg.ScaleH).
		f32(cfg.ScaleW).
		u32(boolFlag(positionSensitive))

	data, err := b.run(kernel{
		name:       "pooling",
		code:       poolingShader,
		units:      total,
		inputs:     [][]byte{input.Data(), rois.Data()},
		outputSize: uint64(total) * 4,
		params:     params,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b.output(op, shape, data)
}

// PairwiseIoU computes the [N, M] IoU matrix on the GPU.
func (b *Backend) PairwiseIoU(boxes1, boxes2 *tensor.RawTensor) (*tensor.RawTensor, error) {
	const op = "pairwise_iou"
	if err := vision.CheckBoxes(op, "boxes1", boxes1, 4); err != nil {
		return nil, b.fail(op, err)
	}
	if err := vision.CheckBoxes(op, "boxes2", boxes2, 4); err != nil {
		return nil, b.fail(op, err)
	}
	if err := vision.CheckDevice(op, tensor.WebGPU, boxes1, boxes2); err != nil {
		return nil, b.fail(op, err)
	}

	n, m := boxes1.Shape()[0], boxes2.Shape()[0]
	if n == 0 || m == 0 {
		return b.output(op, tensor.Shape{n, m}, nil)
	}
	data, err := b.run(kernel{
		name:       "iou",
		code:       iouShader,
		units:      n * m,
		inputs:     [][]byte{boxes1.Data(), boxes2.Data()},
		outputSize: uint64(n*m) * 4,
		params:     uniform(nil).u32(n).u32(m),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b.output(op, tensor.Shape{n, m}, data)
}

// NMS computes the suppression mask on the GPU and scans it on the host.
// The result matches the CPU backend: kept rows in ascending index order.
func (b *Backend) NMS(boxes *tensor.RawTensor, threshold float32) ([]int, error) {
	const op = "nms"
	if err := vision.CheckBoxes(op, "boxes", boxes, 5); err != nil {
		return nil, b.fail(op, err)
	}
	if err := vision.CheckDevice(op, tensor.WebGPU, boxes); err != nil {
		return nil, b.fail(op, err)
	}
	if err := vision.ValidateThreshold(op, threshold); err != nil {
		return nil, b.fail(op, err)
	}

	n := boxes.Shape()[0]
	if n == 0 {
		return []int{}, nil
	}
	src := boxes.AsFloat32()
	scores := make([]float32, n)
	for i := range scores {
		scores[i] = src[i*5+4]
	}
	order := vision.ScoreOrder(scores)
	sorted := make([]float32, 0, n*4)
	for _, idx := range order {
		sorted = append(sorted, src[idx*5:idx*5+4]...)
	}
	sortedBoxes, err := tensor.FromFloat32(sorted, tensor.Shape{n, 4}, tensor.WebGPU)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blocks := (n + nmsBlock - 1) / nmsBlock
	raw, err := b.run(kernel{
		name:       "nms_mask",
		code:       nmsMaskShader,
		units:      n * blocks,
		inputs:     [][]byte{sortedBoxes.Data()},
		outputSize: uint64(n*blocks) * 4,
		params:     uniform(nil).u32(n).u32(blocks).f32(threshold),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	removed := make([]uint32, blocks)
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		block, bit := i/nmsBlock, uint(i%nmsBlock)
		if removed[block]&(1<<bit) != 0 {
			continue
		}
		keep = append(keep, order[i])
		for w := block; w < blocks; w++ {
			removed[w] |= binary.LittleEndian.Uint32(raw[(i*blocks+w)*4:])
		}
	}
	slices.Sort(keep)
	return keep, nil
}

func (b *Backend) checkPoolInputs(op string, input, rois *tensor.RawTensor, cfg vision.PoolConfig) error {
	if err := cfg.Validate(op); err != nil {
		return b.fail(op, err)
	}
	if err := vision.CheckFeatureMap(op, "input", input); err != nil {
		return b.fail(op, err)
	}
	if err := vision.CheckROIs(op, rois, input.Shape()[0]); err != nil {
		return b.fail(op, err)
	}
	if err := vision.CheckDevice(op, tensor.WebGPU, input, rois); err != nil {
		return b.fail(op, err)
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/vision/detection"
	"github.com/born-ml/vision/tensor"
)

const benchPooled = 7

type benchOptions struct {
	Boxes      int
	ROIs       int
	Channels   int
	Size       int
	Iterations int
}

type benchCase struct {
	op    string
	shape string
	run   func() error
}

type benchResult struct {
	op    string
	shape string
	mean  time.Duration
	total time.Duration
}

func BenchHandler(cmd *cobra.Command, args []string) error {
	var opts benchOptions
	var err error
	for name, dst := range map[string]*int{
		"boxes":      &opts.Boxes,
		"rois":       &opts.ROIs,
		"channels":   &opts.Channels,
		"size":       &opts.Size,
		"iterations": &opts.Iterations,
	} {
		if *dst, err = cmd.Flags().GetInt(name); err != nil {
			return err
		}
		if *dst <= 0 {
			return fmt.Errorf("--%s must be positive", name)
		}
	}

	backend, release, err := backendFromFlags(cmd)
	if err != nil {
		return err
	}
	defer release()

	results, err := runBench(backend, opts)
	if err != nil {
		return err
	}
	writeBench(cmd.OutOrStdout(), backend.Name(), opts.Iterations, results)
	return nil
}

func runBench(backend detection.Backend, opts benchOptions) ([]benchResult, error) {
	cases, err := benchCases(backend, opts, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		return nil, err
	}

	results := make([]benchResult, 0, len(cases))
	for _, c := range cases {
		// Warm up pipelines and buffer pools before timing.
		if err := c.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.op, err)
		}
		start := time.Now()
		for i := 0; i < opts.Iterations; i++ {
			if err := c.run(); err != nil {
				return nil, fmt.Errorf("%s: %w", c.op, err)
			}
		}
		total := time.Since(start)
		results = append(results, benchResult{
			op:    c.op,
			shape: c.shape,
			mean:  total / time.Duration(opts.Iterations),
			total: total,
		})
	}
	return results, nil
}

func benchCases(backend detection.Backend, opts benchOptions, rng *rand.Rand) ([]benchCase, error) {
	device := backend.Device()
	c, s := opts.Channels, opts.Size

	input, err := randomTensor(rng, tensor.Shape{1, c, s, s}, device)
	if err != nil {
		return nil, err
	}
	psOut := max(1, c/(benchPooled*benchPooled))
	psInput, err := randomTensor(rng, tensor.Shape{1, psOut * benchPooled * benchPooled, s, s}, device)
	if err != nil {
		return nil, err
	}

	rois := make([]float32, 0, opts.ROIs*5)
	for _, b := range randomBoxes(rng, opts.ROIs, float32(s)) {
		rois = append(rois, 0, b[0], b[1], b[2], b[3])
	}
	roiTensor, err := tensor.FromFloat32(rois, tensor.Shape{opts.ROIs, 5}, device)
	if err != nil {
		return nil, err
	}
	pool := detection.PoolConfig{ScaleH: 1, ScaleW: 1, PooledH: benchPooled, PooledW: benchPooled, SamplingRatio: 2}
	ps := pool
	ps.OutChannels = psOut

	poolGrad, err := randomTensor(rng, tensor.Shape{opts.ROIs, c, benchPooled, benchPooled}, device)
	if err != nil {
		return nil, err
	}

	boxes := randomBoxes(rng, opts.Boxes, 1000)
	flat := make([]float32, 0, opts.Boxes*4)
	scored := make([]float32, 0, opts.Boxes*5)
	for _, b := range boxes {
		flat = append(flat, b[:]...)
		scored = append(scored, b[0], b[1], b[2], b[3], rng.Float32())
	}
	boxTensor, err := tensor.FromFloat32(flat, tensor.Shape{opts.Boxes, 4}, device)
	if err != nil {
		return nil, err
	}
	scoredTensor, err := tensor.FromFloat32(scored, tensor.Shape{opts.Boxes, 5}, device)
	if err != nil {
		return nil, err
	}

	roiShape := fmt.Sprintf("%dx%dx%dx%d rois=%d", 1, c, s, s, opts.ROIs)
	boxShape := "boxes=" + strconv.Itoa(opts.Boxes)
	cases := []benchCase{
		{"roi_align", roiShape, func() error {
			_, err := backend.ROIAlign(input, roiTensor, pool)
			return err
		}},
		{"roi_align_backward", roiShape, func() error {
			_, err := backend.ROIAlignBackward(poolGrad, roiTensor, pool, 1, c, s, s)
			return err
		}},
		{"ps_roi_align", fmt.Sprintf("%dx%dx%dx%d rois=%d", 1, psOut*benchPooled*benchPooled, s, s, opts.ROIs), func() error {
			_, err := backend.PSROIAlign(psInput, roiTensor, ps)
			return err
		}},
		{"pairwise_iou", boxShape, func() error {
			_, err := backend.PairwiseIoU(boxTensor, boxTensor)
			return err
		}},
		{"nms", boxShape, func() error {
			_, err := backend.NMS(scoredTensor, 0.5)
			return err
		}},
	}

	deform, ok := backend.(detection.DeformableBackend)
	if !ok {
		return cases, nil
	}

	cfg := detection.DeformConfig{
		KernelH: 3, KernelW: 3,
		PadH: 1, PadW: 1,
		StrideH: 1, StrideW: 1,
		DilationH: 1, DilationW: 1,
		DeformableGroups: 1,
		ParallelImgs:     1,
	}
	offset, err := randomTensor(rng, tensor.Shape{1, 2 * cfg.KernelH * cfg.KernelW, s, s}, device)
	if err != nil {
		return nil, err
	}
	mask, err := randomTensor(rng, tensor.Shape{1, cfg.KernelH * cfg.KernelW, s, s}, device)
	if err != nil {
		return nil, err
	}
	weight, err := randomTensor(rng, tensor.Shape{c, c, cfg.KernelH, cfg.KernelW}, device)
	if err != nil {
		return nil, err
	}
	convGrad, err := randomTensor(rng, tensor.Shape{1, c, s, s}, device)
	if err != nil {
		return nil, err
	}

	convShape := fmt.Sprintf("%dx%dx%dx%d k=3", 1, c, s, s)
	return append(cases,
		benchCase{"deform_conv2d", convShape, func() error {
			_, err := deform.DeformConv2D(input, offset, mask, weight, cfg)
			return err
		}},
		benchCase{"deform_conv2d_backward", convShape, func() error {
			_, err := deform.DeformConv2DBackward(convGrad, input, offset, mask, weight, cfg)
			return err
		}},
	), nil
}

func writeBench(w io.Writer, backend string, iterations int, results []benchResult) {
	table := newTable(w)
	table.SetHeader([]string{"backend", "op", "shape", "iterations", "mean", "total"})
	for _, r := range results {
		table.Append([]string{
			backend,
			r.op,
			r.shape,
			strconv.Itoa(iterations),
			r.mean.Round(time.Microsecond).String(),
			r.total.Round(time.Microsecond).String(),
		})
	}
	table.Render()
}

func randomTensor(rng *rand.Rand, shape tensor.Shape, device tensor.Device) (*tensor.RawTensor, error) {
	t, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		return nil, err
	}
	data := t.AsFloat32()
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return t, nil
}

// randomBoxes returns n LTRB boxes inside [0, extent)^2 with sides of at least 1.
func randomBoxes(rng *rand.Rand, n int, extent float32) [][4]float32 {
	out := make([][4]float32, n)
	for i := range out {
		x1, y1 := rng.Float32()*extent, rng.Float32()*extent
		w := 1 + rng.Float32()*(extent-x1)
		h := 1 + rng.Float32()*(extent-y1)
		out[i] = [4]float32{x1, y1, x1 + w, y1 + h}
	}
	return out
}

package cpu

import (
	"context"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// DeformConv2D performs deformable convolution (modulated when mask is non-nil).
//
// Input shape:  [N, C, H, W]
// Offset shape: [N, G*2*kh*kw, Hout, Wout]
// Mask shape:   [N, G*kh*kw, Hout, Wout] or nil
// Weight shape: [C_out, C, kh, kw]
// Output shape: [N, C_out, Hout, Wout]
//
// Algorithm, per chunk of ParallelImgs images:
//  1. DeformIm2Col: [C*kh*kw, P*Hout*Wout] column buffer
//  2. MatMul: weight [C_out, C*kh*kw] @ columns -> [C_out, P*Hout*Wout]
//  3. Scatter the product into the chunk's output images
func (cpu *CPUBackend) DeformConv2D(input, offset, mask, weight *tensor.RawTensor, cfg vision.DeformConfig) (*tensor.RawTensor, error) {
	const op = "deform_conv2d"
	g, err := cpu.checkDeformConv(op, input, offset, mask, weight, cfg)
	if err != nil {
		return nil, err
	}
	cOut := weight.Shape()[0]

	output, err := cpu.alloc(op, tensor.Shape{g.Batch, cOut, g.OutH, g.OutW})
	if err != nil {
		return nil, err
	}

	inputData, offsetData, maskVals := input.AsFloat32(), offset.AsFloat32(), maskData(mask)
	weightData, outData := weight.AsFloat32(), output.AsFloat32()
	K := g.Channels * cfg.Taps()

	err = cpu.eachChunk(g, cfg, func(l deformLayout) error {
		columns, err := cpu.alloc(op, g.Columns(cfg, l.imgs))
		if err != nil {
			return err
		}
		colData := columns.AsFloat32()
		cpu.deformIm2Col(l, inputData, offsetData, maskVals, colData)

		spatial, cols := l.spatial(), l.colCount()
		cpu.launch(op, cOut*cols, func(k int) {
			co, col := k/cols, k%cols
			var sum float32
			for r := 0; r < K; r++ {
				sum += weightData[co*K+r] * colData[r*cols+col]
			}
			b, pos := col/spatial, col%spatial
			outData[((l.batchStart+b)*cOut+co)*spatial+pos] = sum
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// DeformConv2DBackward computes the gradients of DeformConv2D.
//
// Per chunk of ParallelImgs images:
//  1. Recompute the column buffer with DeformIm2Col
//  2. Weight gradient: grad [C_out, P*Hout*Wout] @ columns^T, accumulated over chunks
//  3. Column gradient: weight^T @ grad -> [C*kh*kw, P*Hout*Wout]
//  4. DeformCol2Im and DeformCol2ImCoord turn the column gradient into input,
//     offset and mask gradients
func (cpu *CPUBackend) DeformConv2DBackward(grad, input, offset, mask, weight *tensor.RawTensor, cfg vision.DeformConfig) (*vision.DeformGrads, error) {
	const op = "deform_conv2d_backward"
	g, err := cpu.checkDeformConv(op, input, offset, mask, weight, cfg)
	if err != nil {
		return nil, err
	}
	cOut := weight.Shape()[0]
	if err := vision.CheckShape(op, "grad", grad, tensor.Shape{g.Batch, cOut, g.OutH, g.OutW}); err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, grad); err != nil {
		return nil, cpu.fail(op, err)
	}

	grads := &vision.DeformGrads{}
	if grads.Input, err = cpu.alloc(op, input.Shape()); err != nil {
		return nil, err
	}
	if grads.Offset, err = cpu.alloc(op, offset.Shape()); err != nil {
		return nil, err
	}
	if mask != nil {
		if grads.Mask, err = cpu.alloc(op, mask.Shape()); err != nil {
			return nil, err
		}
	}
	if grads.Weight, err = cpu.alloc(op, weight.Shape()); err != nil {
		return nil, err
	}

	inputData, offsetData, maskVals := input.AsFloat32(), offset.AsFloat32(), maskData(mask)
	weightData, gradData := weight.AsFloat32(), grad.AsFloat32()
	var gradMask []float32
	if grads.Mask != nil {
		gradMask = grads.Mask.AsFloat32()
	}
	inputAcc := cpu.accumulator(grads.Input.AsFloat32())
	weightAcc := cpu.accumulator(grads.Weight.AsFloat32())
	K := g.Channels * cfg.Taps()

	err = cpu.eachChunk(g, cfg, func(l deformLayout) error {
		columns, err := cpu.alloc(op, g.Columns(cfg, l.imgs))
		if err != nil {
			return err
		}
		gradColumns, err := cpu.alloc(op, g.Columns(cfg, l.imgs))
		if err != nil {
			return err
		}
		colData, gradColData := columns.AsFloat32(), gradColumns.AsFloat32()
		cpu.deformIm2Col(l, inputData, offsetData, maskVals, colData)

		spatial, cols := l.spatial(), l.colCount()
		gradAt := func(co, col int) float32 {
			b, pos := col/spatial, col%spatial
			return gradData[((l.batchStart+b)*cOut+co)*spatial+pos]
		}

		cpu.launch(op, cOut*K, func(k int) {
			co, r := k/K, k%K
			var sum float32
			for col := 0; col < cols; col++ {
				sum += gradAt(co, col) * colData[r*cols+col]
			}
			weightAcc.Add(k, sum)
		})

		cpu.launch(op, K*cols, func(k int) {
			r, col := k/cols, k%cols
			var sum float32
			for co := 0; co < cOut; co++ {
				sum += weightData[co*K+r] * gradAt(co, col)
			}
			gradColData[k] = sum
		})

		cpu.deformCol2Im(l, gradColData, offsetData, maskVals, inputAcc)
		cpu.deformCol2ImCoord(l, gradColData, inputData, offsetData, maskVals, grads.Offset.AsFloat32(), gradMask)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grads, nil
}

// eachChunk runs fn for every ParallelImgs-sized chunk of the batch. Chunks cover
// disjoint images and may run concurrently.
func (cpu *CPUBackend) eachChunk(g vision.DeformGeometry, cfg vision.DeformConfig, fn func(l deformLayout) error) error {
	return parallel.Chunks(context.Background(), g.Batch, cfg.ParallelImgs, func(_ context.Context, start, _ int) error {
		return fn(newDeformLayout(g, cfg, start))
	}, cpu.par)
}

func (cpu *CPUBackend) checkDeformConv(op string, input, offset, mask, weight *tensor.RawTensor, cfg vision.DeformConfig) (vision.DeformGeometry, error) {
	g, err := vision.DeformShapes(op, input, offset, mask, cfg)
	if err != nil {
		return g, cpu.fail(op, err)
	}
	if err := vision.CheckRank(op, "weight", weight, 4); err != nil {
		return g, cpu.fail(op, err)
	}
	want := tensor.Shape{weight.Shape()[0], g.Channels, cfg.KernelH, cfg.KernelW}
	if err := vision.CheckShape(op, "weight", weight, want); err != nil {
		return g, cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, input, offset, mask, weight); err != nil {
		return g, cpu.fail(op, err)
	}
	return g, nil
}

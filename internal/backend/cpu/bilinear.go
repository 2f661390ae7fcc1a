package cpu

import "math"

// Bilinear sampling over one H x W plane stored row-major.
//
// A point (y, x) reads its four integer neighbours (floor/ceil on each axis). The
// point contributes only inside the open window -1 < y < H, -1 < x < W; within it,
// neighbours that fall off the plane read as zero. Coordinates are never clamped.

// bilinearPoint is the neighbourhood of one sample point.
type bilinearPoint struct {
	yLow, xLow    int
	ly, lx        float32 // fractional distances from the low neighbour
	hy, hx        float32 // 1 - ly, 1 - lx
	inside        bool    // point lies in the sampling window
	height, width int
}

func locate(height, width int, y, x float32) bilinearPoint {
	p := bilinearPoint{height: height, width: width}
	if y <= -1 || y >= float32(height) || x <= -1 || x >= float32(width) {
		return p
	}
	p.inside = true

	yf := float32(math.Floor(float64(y)))
	xf := float32(math.Floor(float64(x)))
	p.yLow, p.xLow = int(yf), int(xf)
	p.ly, p.lx = y-yf, x-xf
	p.hy, p.hx = 1-p.ly, 1-p.lx
	return p
}

// neighbours returns the flat plane index and weight of the 4 neighbours in
// (low,low), (low,high), (high,low), (high,high) order. Off-plane neighbours get
// index -1 and weight 0.
func (p bilinearPoint) neighbours() (idx [4]int, w [4]float32) {
	idx = [4]int{-1, -1, -1, -1}
	if !p.inside {
		return idx, w
	}
	yHigh, xHigh := p.yLow+1, p.xLow+1
	yLowOK, yHighOK := p.yLow >= 0, yHigh <= p.height-1
	xLowOK, xHighOK := p.xLow >= 0, xHigh <= p.width-1

	if yLowOK && xLowOK {
		idx[0], w[0] = p.yLow*p.width+p.xLow, p.hy*p.hx
	}
	if yLowOK && xHighOK {
		idx[1], w[1] = p.yLow*p.width+xHigh, p.hy*p.lx
	}
	if yHighOK && xLowOK {
		idx[2], w[2] = yHigh*p.width+p.xLow, p.ly*p.hx
	}
	if yHighOK && xHighOK {
		idx[3], w[3] = yHigh*p.width+xHigh, p.ly*p.lx
	}
	return idx, w
}

// bilinear samples plane at (y, x).
func bilinear(plane []float32, height, width int, y, x float32) float32 {
	idx, w := locate(height, width, y, x).neighbours()
	var v float32
	for k := range idx {
		if idx[k] >= 0 {
			v += w[k] * plane[idx[k]]
		}
	}
	return v
}

// bilinearBackward hands grad*weight for each in-plane neighbour of (y, x) to
// scatter, using indices relative to the plane.
func bilinearBackward(height, width int, y, x, grad float32, scatter func(i int, v float32)) {
	idx, w := locate(height, width, y, x).neighbours()
	for k := range idx {
		if idx[k] >= 0 {
			scatter(idx[k], w[k]*grad)
		}
	}
}

// bilinearCoordGrad returns d(sample)/dy and d(sample)/dx at (y, x), obtained by
// differentiating the neighbour weights. Points outside the window have zero
// gradient.
func bilinearCoordGrad(plane []float32, height, width int, y, x float32) (dy, dx float32) {
	p := locate(height, width, y, x)
	idx, _ := p.neighbours()
	if !p.inside {
		return 0, 0
	}

	var v [4]float32
	for k := range idx {
		if idx[k] >= 0 {
			v[k] = plane[idx[k]]
		}
	}
	// d/dy: weights hy*hx, hy*lx, ly*hx, ly*lx differentiate to -hx, -lx, hx, lx.
	dy = -p.hx*v[0] - p.lx*v[1] + p.hx*v[2] + p.lx*v[3]
	// d/dx: they differentiate to -hy, hy, -ly, ly.
	dx = -p.hy*v[0] + p.hy*v[1] - p.ly*v[2] + p.ly*v[3]
	return dy, dx
}

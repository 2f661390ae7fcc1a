//go:build windows

package webgpu

// WGSL compute shaders for the vision operators.
// Using string constants instead of embed for simplicity; shared helpers are
// concatenated into each kernel.

// workgroupSize is the default number of threads per workgroup.
const workgroupSize = 256

// invocationIndex flattens the 2D dispatch grid produced by workgroupGrid.
const invocationIndex = `
fn invocation_index(gid: vec3<u32>, nwg: vec3<u32>) -> u32 {
    return gid.x + gid.y * nwg.x * 256u;
}
`

// poolingShader implements ROIAlign and, with position_sensitive set, PSROIAlign.
// One invocation per output bin.
const poolingShader = invocationIndex + `
@group(0) @binding(0) var<storage, read> feat: array<f32>;
@group(0) @binding(1) var<storage, read> rois: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    total: u32,
    channels: u32,
    height: i32,
    width: i32,
    pooled_h: u32,
    pooled_w: u32,
    sampling_ratio: i32,
    out_channels: u32,
    scale_h: f32,
    scale_w: f32,
    position_sensitive: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

fn pixel(plane: u32, y: i32, x: i32) -> f32 {
    if (y < 0 || y >= params.height || x < 0 || x >= params.width) {
        return 0.0;
    }
    return feat[plane + u32(y * params.width + x)];
}

fn bilinear(plane: u32, y: f32, x: f32) -> f32 {
    if (y <= -1.0 || y >= f32(params.height) || x <= -1.0 || x >= f32(params.width)) {
        return 0.0;
    }
    let yf = floor(y);
    let xf = floor(x);
    let y0 = i32(yf);
    let x0 = i32(xf);
    let ly = y - yf;
    let lx = x - xf;
    let hy = 1.0 - ly;
    let hx = 1.0 - lx;
    return hy * hx * pixel(plane, y0, x0) + hy * lx * pixel(plane, y0, x0 + 1)
         + ly * hx * pixel(plane, y0 + 1, x0) + ly * lx * pixel(plane, y0 + 1, x0 + 1);
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) nwg: vec3<u32>) {
    let idx = invocation_index(gid, nwg);
    if (idx >= params.total) {
        return;
    }
    let pw = idx % params.pooled_w;
    let ph = (idx / params.pooled_w) % params.pooled_h;
    let c = (idx / (params.pooled_w * params.pooled_h)) % params.out_channels;
    let r = idx / (params.pooled_w * params.pooled_h * params.out_channels);

    var cin = c;
    if (params.position_sensitive != 0u) {
        cin = (c * params.pooled_h + ph) * params.pooled_w + pw;
    }

    let batch = u32(rois[r * 5u]);
    let start_w = rois[r * 5u + 1u] * params.scale_w;
    let start_h = rois[r * 5u + 2u] * params.scale_h;
    let roi_w = max(rois[r * 5u + 3u] * params.scale_w - start_w, 1.0);
    let roi_h = max(rois[r * 5u + 4u] * params.scale_h - start_h, 1.0);
    let bin_h = roi_h / f32(params.pooled_h);
    let bin_w = roi_w / f32(params.pooled_w);

    var grid_h = params.sampling_ratio;
    var grid_w = params.sampling_ratio;
    if (params.sampling_ratio <= 0) {
        grid_h = max(i32(ceil(bin_h)), 1);
        grid_w = max(i32(ceil(bin_w)), 1);
    }

    let plane = (batch * params.channels + cin) * u32(params.height * params.width);
    var sum = 0.0;
    for (var iy = 0; iy < grid_h; iy++) {
        let y = start_h + f32(ph) * bin_h + (f32(iy) + 0.5) * bin_h / f32(grid_h);
        for (var ix = 0; ix < grid_w; ix++) {
            let x = start_w + f32(pw) * bin_w + (f32(ix) + 0.5) * bin_w / f32(grid_w);
            sum += bilinear(plane, y, x);
        }
    }
    result[idx] = sum / f32(grid_h * grid_w);
}
`

// boxIoU computes the IoU of two (x1, y1, x2, y2) boxes; 0 for empty overlaps.
const boxIoU = `
fn box_area(b: vec4<f32>) -> f32 {
    let w = b.z - b.x;
    let h = b.w - b.y;
    if (w <= 0.0 || h <= 0.0) {
        return 0.0;
    }
    return w * h;
}

fn box_iou(a: vec4<f32>, b: vec4<f32>) -> f32 {
    let w = min(a.z, b.z) - max(a.x, b.x);
    let h = min(a.w, b.w) - max(a.y, b.y);
    if (w <= 0.0 || h <= 0.0) {
        return 0.0;
    }
    let inter = w * h;
    let uni = box_area(a) + box_area(b) - inter;
    if (uni <= 0.0) {
        return 0.0;
    }
    return inter / uni;
}
`

// iouShader computes the pairwise IoU matrix, one invocation per pair.
const iouShader = invocationIndex + boxIoU + `
@group(0) @binding(0) var<storage, read> boxes1: array<f32>;
@group(0) @binding(1) var<storage, read> boxes2: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    n: u32,
    m: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) nwg: vec3<u32>) {
    let idx = invocation_index(gid, nwg);
    if (idx >= params.n * params.m) {
        return;
    }
    let i = idx / params.m;
    let j = idx % params.m;
    let a = vec4<f32>(boxes1[i * 4u], boxes1[i * 4u + 1u], boxes1[i * 4u + 2u], boxes1[i * 4u + 3u]);
    let b = vec4<f32>(boxes2[j * 4u], boxes2[j * 4u + 1u], boxes2[j * 4u + 2u], boxes2[j * 4u + 3u]);
    result[idx] = box_iou(a, b);
}
`

// nmsMaskShader sets bit k of mask[i*blocks + block] when box block*32+k, which
// follows box i in score order, overlaps it by more than threshold. Boxes arrive
// sorted by descending score.
const nmsMaskShader = invocationIndex + boxIoU + `
@group(0) @binding(0) var<storage, read> boxes: array<f32>;
@group(0) @binding(1) var<storage, read_write> mask: array<u32>;

struct Params {
    n: u32,
    blocks: u32,
    threshold: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

fn load_box(i: u32) -> vec4<f32> {
    return vec4<f32>(boxes[i * 4u], boxes[i * 4u + 1u], boxes[i * 4u + 2u], boxes[i * 4u + 3u]);
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) nwg: vec3<u32>) {
    let idx = invocation_index(gid, nwg);
    if (idx >= params.n * params.blocks) {
        return;
    }
    let i = idx / params.blocks;
    let block = idx % params.blocks;
    let current = load_box(i);

    var word = 0u;
    let end = min((block + 1u) * 32u, params.n);
    for (var j = max(block * 32u, i + 1u); j < end; j++) {
        if (box_iou(current, load_box(j)) > params.threshold) {
            word |= 1u << (j - block * 32u);
        }
    }
    mask[idx] = word;
}
`

// Package webgpu runs the forward vision operators as WGSL compute kernels.
//
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
// The backend is only built on Windows, where the wgpu-native library is shipped.
// Backward passes run on the host through the CPU backend.
package webgpu

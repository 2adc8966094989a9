package wgpubackend

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// CompileShaderModule turns WGSL source into the opaque rhi.ShaderStage.Module
// value a pass declaration carries alongside its reflection.Record, the same
// CreateShaderModule call the teacher makes once per shader in
// RegisterRenderPipeline/RegisterComputePipeline — hoisted out to its own
// function here since this backend compiles modules once at load time, ahead of
// pass declaration, rather than lazily inside pipeline registration.
func (d *Device) CompileShaderModule(label, wgsl string) (*wgpu.ShaderModule, error) {
	mod, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: wgsl},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpubackend: compile shader module %q: %w", label, err)
	}
	return mod, nil
}

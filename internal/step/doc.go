// Package step implements the render steps of the deferred pipeline.
//
// A Step owns a pipeline, a descriptor set layout, a descriptor pool with
// its sets, and one or more pre-recorded command buffers. Steps are driven
// through a fixed setup sequence (see Setup) once per window configuration;
// scene changes only rerun UpdateDescriptorSets and WriteCmdBuff (see
// Refresh).
//
// The pipeline order is:
//
//	Splash       graphics  swapchain image i (only while no scene is set)
//	Geometry     graphics  G-buffer and depth
//	Shadow       graphics  one moments layer per shadow-casting light
//	Blur         compute   separable gaussian over each moments layer
//	GlobalLight  graphics  directional lights into the lighting target
//	LocalLight   graphics  point light volumes into the lighting target
//	Ambient      graphics  ambient term into the lighting target
//	Final        graphics  tonemap into swapchain image i
package step

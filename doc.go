// Package deferred drives a deferred shading frame on an explicit GPU API.
//
// # Overview
//
// A Renderer owns the queues, command pools, uniform buffers, swapchain
// and render targets of one window, and records eight passes into command
// buffers once:
//
//	splash    letterboxed splash image, shown until a scene is set
//	geometry  G-buffer fill
//	shadow    moment shadow maps, one layer per shadow-casting light
//	blur      separable blur of the shadow maps (compute)
//	global    directional lights
//	local     point lights as instanced light volumes
//	ambient   ambient term and emissive
//	final     tone mapping into the swapchain image
//
// Each frame submits the recorded buffers as a chain: every pass waits on
// the semaphore of the pass before it, the first on the acquired image and
// the last signals presentation. Blur and global lighting are optional;
// disabling one links its neighbours directly.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/deferred"
//		_ "github.com/gogpu/deferred/backend/vulkan"
//	)
//
//	cfg := deferred.DefaultConfig()
//	r, err := deferred.Open(cfg, deferred.WithWindow(win))
//	if err != nil {
//		return err
//	}
//	defer r.Destroy()
//
//	verts, idx := scene.Cube()
//	mesh, _ := scene.NewMesh(r.Driver(), "cube", verts, idx)
//	s := scene.NewBuilder().
//		Material(scene.Material{Albedo: mgl32.Vec4{0.8, 0.8, 0.8, 1}}).
//		Object("cube", mesh, 0, mgl32.Ident4()).
//		Directional(scene.DirectionalLight{Direction: mgl32.Vec3{-1, -1, -1}, Color: mgl32.Vec3{1, 1, 1}, CastsShadow: true}).
//		Build()
//	if err := r.SetScene(s); err != nil {
//		return err
//	}
//	return r.Run(ctx, nil)
//
// # Synchronization
//
// Every wait is bounded: image acquisition by Config.AcquireTimeout and
// queue submissions by Config.FenceTimeout. A wait that expires returns an
// error wrapping ErrTimeout and the swapchain is rebuilt before the next
// frame. Every frame ends with its queues idle, so a scene may be edited
// between frames without further synchronization.
//
// # Backends
//
// Backends register themselves with package backend when imported:
// backend/vulkan, backend/wgpu and backend/soft, an in-memory device
// for tests and headless use.
package deferred

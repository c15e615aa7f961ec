// Package scene holds the plain data the renderer draws: a camera, objects
// with meshes and materials, and directional and point lights.
//
// Scenes carry no GPU state of their own beyond the buffer handles of their
// meshes, which an asset loader (or NewMesh) has already uploaded. The
// renderer reads a scene when it is set and packs it into uniform buffers
// every frame.
//
// Example:
//
//	s := scene.NewBuilder().
//	    Camera(scene.DefaultCamera()).
//	    Material(scene.Material{Albedo: mgl32.Vec4{0.8, 0.8, 0.8, 1}, Roughness: 0.5}).
//	    Object("floor", floor, 0, mgl32.Scale3D(10, 0.1, 10)).
//	    Directional(scene.DirectionalLight{Direction: mgl32.Vec3{-1, -2, -1}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 3, CastsShadow: true}).
//	    Build()
package scene

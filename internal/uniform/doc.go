// Package uniform packs scene data into std140 uniform blocks and owns the
// host-visible buffers the render steps bind.
//
// Blocks are single-buffered: the renderer drains every queue at the end of
// a frame before the next Upload overwrites them.
package uniform

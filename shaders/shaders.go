// Package shaders embeds the default shader set.
//
// Every file holds one entry point named main. The renderer compiles them
// to SPIR-V at startup unless a shader directory with precompiled .spv
// files is configured.
package shaders

import "embed"

// FS holds the default WGSL shaders.
//
//go:embed *.wgsl
var FS embed.FS

// Names lists every shader the render steps load.
var Names = []string{
	"fullscreen.vert",
	"splash.frag",
	"geometry.vert",
	"geometry.frag",
	"shadow.vert",
	"shadow.frag",
	"blur.comp",
	"global.frag",
	"local.vert",
	"local.frag",
	"ambient.frag",
	"final.frag",
}

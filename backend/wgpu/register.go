// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the hal Vulkan backend used by Open

	"github.com/gogpu/deferred/backend"
	"github.com/gogpu/deferred/gpucore"
)

func init() {
	backend.Register(backend.BackendWGPU, func(opts backend.Options) (gpucore.Driver, error) {
		o := Options{Logger: opts.Logger}
		var (
			d   *Device
			err error
		)
		if opts.Provider == nil {
			d, err = Open(o)
		} else {
			p, ok := opts.Provider.(gpucontext.DeviceProvider)
			if !ok {
				return nil, fmt.Errorf("wgpu: provider %T is not a gpucontext.DeviceProvider: %w", opts.Provider, backend.ErrNoProvider)
			}
			d, err = NewFromProvider(p, o)
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package vulkan

import (
	"fmt"

	"github.com/gogpu/deferred/backend"
	"github.com/gogpu/deferred/gpucore"
)

func init() {
	backend.Register(backend.BackendVulkan, func(opts backend.Options) (gpucore.Driver, error) {
		// A registry-opened driver must be able to present. Headless
		// devices are available through Open.
		s, ok := opts.Provider.(Surface)
		if !ok {
			return nil, fmt.Errorf("vulkan: provider %T is not a vulkan.Surface: %w", opts.Provider, backend.ErrNoProvider)
		}
		d, err := Open(Options{Validation: opts.Validation, Logger: opts.Logger, Surface: s})
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

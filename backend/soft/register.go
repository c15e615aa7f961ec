package soft

import (
	"github.com/gogpu/deferred/backend"
	"github.com/gogpu/deferred/gpucore"
)

func init() {
	backend.Register(backend.BackendSoft, func(backend.Options) (gpucore.Driver, error) {
		return New(Options{}), nil
	})
}

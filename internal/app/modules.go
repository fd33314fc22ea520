package app

import (
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/modules/preprocess"
	"github.com/vk/wavegrid/modules/solver"
)

// coreModules are the components registered when the caller supplies none.
var coreModules = []registry.Module{
	&solver.Module{},
	&preprocess.Module{},
}

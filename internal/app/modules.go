package app

import (
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/archive"
	"github.com/vk/flowgrid/modules/env_vars"
	"github.com/vk/flowgrid/modules/filter"
	"github.com/vk/flowgrid/modules/git"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/vk/flowgrid/modules/print"
	"github.com/vk/flowgrid/modules/s3"
	"github.com/vk/flowgrid/modules/socketio"
	"github.com/vk/flowgrid/modules/sqlite"
	"github.com/vk/flowgrid/modules/static"
	"github.com/vk/flowgrid/modules/stats"
	"github.com/vk/flowgrid/modules/timestamp"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowgrid binary.
var coreModules = []registry.Module{
	// sources
	&timestamp.Module{},
	&env_vars.Module{},
	&static.Module{},
	&http_client.Module{},
	&git.Module{},
	// aggregators
	&filter.Module{},
	&stats.Module{},
	// sinks
	&print.Module{},
	&archive.Module{},
	&sqlite.Module{},
	&socketio.Module{},
	&s3.Module{},
}

// NewRegistry returns a registry populated with the core modules. Worker
// processes use it to rebuild the entities they are handed.
func NewRegistry() *registry.Registry {
	return registry.New(coreModules...)
}

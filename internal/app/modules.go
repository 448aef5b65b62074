package app

import (
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/modules/aggregator"
	"github.com/vk/riskflow/modules/analyzer"
	"github.com/vk/riskflow/modules/finalizer"
	"github.com/vk/riskflow/modules/orchestrator"
)

// coreModules is the definitive list of node modules compiled into the
// riskflow binary.
var coreModules = []node.Module{
	orchestrator.Module{},
	analyzer.Module{},
	aggregator.Module{},
	finalizer.Module{},
}

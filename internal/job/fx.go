package job

import (
	"github.com/studioordo/backoffice/internal/job/processor"
	"github.com/studioordo/backoffice/internal/job/store"
	"go.uber.org/fx"
)

// Module wires the store and processor. RunnerModule additionally starts
// the poll loop; API-side binaries import Module alone so they can enqueue
// without processing.
var Module = fx.Module("job",
	fx.Provide(
		store.NewStore,
		processor.NewProcessor,
	),
)

var RunnerModule = fx.Module("job.runner",
	fx.Provide(NewRunner),
	fx.Invoke(registerHooks),
)

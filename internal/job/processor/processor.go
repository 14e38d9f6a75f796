package processor

import (
	"context"
	"fmt"

	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	"github.com/studioordo/backoffice/internal/job/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry maps job type strings to their handlers.
type Registry map[string]jobdomain.Handler

// Types returns the registered type strings, usable as the store's
// enqueue allow-list.
func (r Registry) Types() []string {
	types := make([]string, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	return types
}

type Params struct {
	fx.In

	Store    *store.Store
	Log      *zap.Logger
	Registry Registry
}

// Processor claims one job per tick and dispatches it to the handler
// registered for its type.
type Processor struct {
	store    *store.Store
	log      *zap.Logger
	registry Registry
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		store:    p.Store,
		log:      p.Log.Named("job.processor"),
		registry: p.Registry,
	}
}

// Tick performs at most one unit of work. Returns true when a job was
// claimed and attempted. Invocation cadence is the caller's concern.
func (p *Processor) Tick(ctx context.Context) (bool, error) {
	return p.store.ProcessNext(ctx, p.dispatch)
}

func (p *Processor) dispatch(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
	handler, ok := p.registry[job.Type]
	if !ok {
		// Enqueue-time validation makes this unreachable in a correctly
		// wired application; a row claimed with no handler is terminal.
		p.log.Error("no handler registered for claimed job", zap.String("type", job.Type))
		return jobdomain.Fail(fmt.Errorf("no handler registered for job type %q", job.Type))
	}
	return handler(ctx, job)
}

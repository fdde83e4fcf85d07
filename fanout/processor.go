package fanout

import (
	"context"

	"github.com/jhosm/ProductBundles-sub000/event"
)

// processorName identifies the engine when it is registered on an event
// manager.
const processorName = "fanout-engine"

type engineProcessor struct {
	engine *Engine
}

// Processor exposes the engine as an event.Processor so an event
// manager can feed entity change events straight into the fan-out loop.
func (e *Engine) Processor() event.Processor {
	return &engineProcessor{engine: e}
}

func (p *engineProcessor) Name() string { return processorName }

func (p *engineProcessor) ProcessEntityEvent(ctx context.Context, evt *event.EntityEvent) error {
	_, err := p.engine.ProcessEntityEvent(ctx, evt)
	return err
}

package orchestrator

import "github.com/rs/zerolog"

// LogPublisher writes orchestrator events as structured log lines. This is
// the production default wired by cmd/gpumand; MemoryPublisher exists only
// for tests that assert on emitted events.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(e Event) {
	evt := p.log.Info().Str("event", e.Name).Str("service", e.Service)
	for k, v := range e.Fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg("orchestrator event")
}

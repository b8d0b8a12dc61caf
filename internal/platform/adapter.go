// Package platform defines the adapter boundary between the normalized
// pipeline and each chat platform's native payloads, auth and delivery API.
// Platforms are added by registering adapters, never by branching inside the
// pipeline.
package platform

import (
	"context"
	"fmt"

	"askhub.app/askhub/internal/domain"
)

// Adapter translates between a platform's native surface and the normalized
// internal types.
type Adapter interface {
	Platform() domain.Platform

	// StripMention removes the platform-specific bot-mention token from
	// question text.
	StripMention(text string) string

	// FormatAnswer renders answer prose plus an already-deduplicated citation
	// list in the platform's native style. An empty source list yields the
	// prose alone, with no citation section.
	FormatAnswer(text string, sources []domain.Source) string

	// SupportsButtons reports whether delivery can attach interactive
	// feedback controls.
	SupportsButtons() bool

	// Deliver sends one outbound answer to the platform. Implementations log
	// failures with full context and return the error for the pipeline to
	// account; they never panic.
	Deliver(ctx context.Context, out domain.OutboundAnswer) error
}

// Registry maps platforms to their adapters.
type Registry struct {
	adapters map[domain.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Get(p domain.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", p)
	}
	return a, nil
}

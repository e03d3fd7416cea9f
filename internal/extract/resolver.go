package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/pkg/types"
)

// StateReader is the part of the host page the resolver reads from
type StateReader interface {
	// DocumentHTML returns the serialized markup of the live document
	DocumentHTML(ctx context.Context) (string, error)
	// GlobalState returns the serialized global container, or "" when it does not exist
	GlobalState(ctx context.Context, name string) (string, error)
}

// Candidate is a matched fragment together with where it was found
type Candidate struct {
	Fragment  string
	Source    string
	Container string
}

// Resolver produces the text to scan: the live document first, then each
// known global state container in order.
type Resolver struct {
	reader     StateReader
	containers []string
	logger     *zap.Logger
}

// NewResolver creates a resolver. An empty container list falls back to the defaults.
func NewResolver(reader StateReader, containers []string, logger *zap.Logger) *Resolver {
	if len(containers) == 0 {
		containers = types.DefaultStateContainers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		reader:     reader,
		containers: containers,
		logger:     logger,
	}
}

// Find returns the best fragment for mode, or false when no source matches.
// Read and serialization failures are logged and the next source is tried.
func (r *Resolver) Find(ctx context.Context, mode types.PageMode) (Candidate, bool) {
	html, err := r.reader.DocumentHTML(ctx)
	if err != nil {
		r.logger.Warn("failed to read document markup", zap.Error(err))
	} else if fragment, ok := Match(html, mode); ok {
		return Candidate{Fragment: fragment, Source: types.SourceDocument}, true
	}

	for _, name := range r.containers {
		if ctx.Err() != nil {
			return Candidate{}, false
		}

		text, err := r.reader.GlobalState(ctx, name)
		if err != nil {
			r.logger.Warn("failed to stringify state",
				zap.String("container", name),
				zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}

		if fragment, ok := Match(text, mode); ok {
			return Candidate{Fragment: fragment, Source: types.SourceState, Container: name}, true
		}
	}

	return Candidate{}, false
}

// Package resources exposes the single entry point used to list and describe
// the children of one job in one region.
package resources

import (
	"context"
	"fmt"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/augment"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/sources"
)

// Manager lists and describes the children of a job using the strategy its
// source resolves to.
type Manager struct {
	deps     sources.Deps
	source   string
	strategy sources.Strategy
}

// NewManager resolves the job source against the registry, the default one
// when nil. An unknown source fails here, before any remote call is made.
// The logger and job given take precedence over the ones set on deps.
func NewManager(logger logging.Logger, registry *sources.Registry, job model.ResourceJob, deps sources.Deps) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", model.ErrInvalidArgument)
	}
	if registry == nil {
		registry = sources.DefaultRegistry()
	}
	deps.Logger = logger
	deps.Job = job

	source, err := registry.Canonical(deps.Job.Source)
	if err != nil {
		return nil, err
	}
	factory, err := registry.Resolve(source)
	if err != nil {
		return nil, err
	}

	deps.Logger = deps.Logger.With("source", source)
	strategy, err := factory(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build source %s: %w", source, err)
	}

	return &Manager{deps: deps, source: source, strategy: strategy}, nil
}

// Source returns the canonical name of the strategy in use.
func (m *Manager) Source() string {
	return m.source
}

// ListAndAugmentByParent returns one result per parent. The records of a
// failed parent are dropped and its error kept on the result.
func (m *Manager) ListAndAugmentByParent(ctx context.Context) ([]augment.Result, error) {
	results, err := m.strategy.Resources(ctx)
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		for _, record := range result.Records {
			if record.Type == "" {
				record.Type = m.deps.Family.Name
			}
			if record.Region == "" {
				record.Region = m.deps.Region
			}
		}
		if !result.Failed() {
			promutil.ResourcesDiscoveredCounter.WithLabelValues(m.deps.Family.Name).Add(float64(len(result.Records)))
		}
	}
	return results, nil
}

// ListAndAugment returns the records of every parent that was described
// successfully.
func (m *Manager) ListAndAugment(ctx context.Context) ([]*model.ChildRecord, error) {
	results, err := m.ListAndAugmentByParent(ctx)
	if err != nil {
		return nil, err
	}
	return augment.Merge(results), nil
}

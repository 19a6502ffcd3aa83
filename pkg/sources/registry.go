// Package sources holds the strategies enumerating the children of a
// resource family and the registry resolving them by name.
package sources

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/augment"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

const (
	DescribeChildren = "describe-children"
	ResourceTagging  = "resource-tagging"
)

// Strategy enumerates the children of a job and returns them described,
// grouped per parent.
type Strategy interface {
	Resources(ctx context.Context) ([]augment.Result, error)
}

// Deps are the collaborators a strategy is built from.
type Deps struct {
	Logger logging.Logger
	Job    model.ResourceJob
	Family config.FamilyConfig
	Region string

	Children children.Client
	// Tagging is only used by strategies enumerating through the tagging api
	Tagging tagging.Client
}

type Factory func(deps Deps) (Strategy, error)

// Registry maps strategy names and their aliases to factories.
type Registry struct {
	factories map[string]Factory
	aliases   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		aliases:   map[string]string{},
	}
}

// DefaultRegistry returns a registry with every built-in strategy. The empty
// name, "describe" and "describe-child" resolve to describe-children.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(DescribeChildren, newDescribeChildren, "", "describe", "describe-child")
	r.mustRegister(ResourceTagging, newResourceTagging)
	return r
}

func (r *Registry) mustRegister(name string, factory Factory, aliases ...string) {
	if err := r.Register(name, factory, aliases...); err != nil {
		panic(err)
	}
}

// Register adds a strategy under a name and optional aliases. A name or alias
// can only be registered once.
func (r *Registry) Register(name string, factory Factory, aliases ...string) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for source %q", model.ErrInvalidArgument, name)
	}
	for _, n := range append([]string{name}, aliases...) {
		if _, exists := r.factories[n]; exists {
			return fmt.Errorf("source %q is already registered", n)
		}
		if _, exists := r.aliases[n]; exists {
			return fmt.Errorf("source %q is already registered as an alias", n)
		}
	}
	r.factories[name] = factory
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
	return nil
}

// Canonical returns the strategy name a source name or alias resolves to.
func (r *Registry) Canonical(name string) (string, error) {
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	if _, ok := r.factories[name]; !ok {
		return "", fmt.Errorf("%w: %q, must be one of %v", model.ErrUnknownSourceStrategy, name, r.Names())
	}
	return name, nil
}

// Resolve returns the factory registered for a source name or alias.
func (r *Registry) Resolve(name string) (Factory, error) {
	canonical, err := r.Canonical(name)
	if err != nil {
		return nil, err
	}
	return r.factories[canonical], nil
}

// Names returns the registered strategy names, aliases excluded.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateJobs checks that the source of every job can be resolved.
func (r *Registry) ValidateJobs(jobsCfg model.JobsConfig) error {
	for idx, job := range jobsCfg.Jobs {
		canonical, err := r.Canonical(job.Source)
		if err != nil {
			return fmt.Errorf("Job [%s/%d]: %w", job.Name, idx, err)
		}
		if canonical == ResourceTagging {
			family := config.SupportedFamilies.GetFamily(job.Type)
			if family == nil || !family.SupportsTagging() {
				return fmt.Errorf("Job [%s/%d]: %w: %s", job.Name, idx, tagging.ErrTaggingNotSupported, job.Type)
			}
		}
	}
	return nil
}

package sources

import (
	"context"
	"fmt"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/augment"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/index"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// resourceTagging enumerates children through the Resource Groups Tagging API
// and derives their parent from the child ARN. Parents without tagged
// children are never seen, so the empty parents policy does not apply.
type resourceTagging struct {
	deps      Deps
	scheduler *augment.Scheduler
}

func newResourceTagging(deps Deps) (Strategy, error) {
	if deps.Children == nil || deps.Tagging == nil {
		return nil, fmt.Errorf("%w: %s needs a children and a tagging client", model.ErrInvalidArgument, ResourceTagging)
	}
	if !deps.Family.SupportsTagging() {
		return nil, fmt.Errorf("%w: %s", tagging.ErrTaggingNotSupported, deps.Family.Name)
	}
	scheduler, err := newScheduler(deps)
	if err != nil {
		return nil, err
	}
	return &resourceTagging{deps: deps, scheduler: scheduler}, nil
}

func (s *resourceTagging) Resources(ctx context.Context) ([]augment.Result, error) {
	resources, err := s.deps.Tagging.GetResources(ctx, s.deps.Job, s.deps.Region)
	if err != nil {
		return nil, err
	}

	refs := make([]model.ChildRef, 0, len(resources))
	tagsByChild := make(map[model.ChildID][]model.Tag, len(resources))
	for _, resource := range resources {
		parent, ok := s.deps.Family.ParentFromChildARN(resource.ARN)
		if !ok {
			s.deps.Logger.Warn("Could not derive the parent of a tagged resource, skipping it", "arn", resource.ARN)
			continue
		}
		id := model.ChildID(resource.ARN)
		refs = append(refs, model.ChildRef{Parent: parent, Child: id, Tags: resource.Tags})
		tagsByChild[id] = resource.Tags
	}

	group := index.Group(refs)
	results, err := s.scheduler.AugmentByParent(ctx, group, s.deps.Children.DescribeChildren)
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		for _, record := range result.Records {
			record.Tags = mergeTags(record.Tags, tagsByChild[record.ID])
		}
	}
	return results, nil
}

// mergeTags adds the tags whose key is missing from the described tags.
func mergeTags(described []model.Tag, enumerated []model.Tag) []model.Tag {
	if len(enumerated) == 0 {
		return described
	}
	keys := make(map[string]struct{}, len(described))
	for _, t := range described {
		keys[t.Key] = struct{}{}
	}
	for _, t := range enumerated {
		if _, exists := keys[t.Key]; !exists {
			described = append(described, t)
			keys[t.Key] = struct{}{}
		}
	}
	return described
}

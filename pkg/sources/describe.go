package sources

import (
	"context"
	"fmt"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/augment"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/index"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// describeChildren lists every parent, then the children of each parent, and
// describes them in batches.
type describeChildren struct {
	deps      Deps
	scheduler *augment.Scheduler
}

func newDescribeChildren(deps Deps) (Strategy, error) {
	if deps.Children == nil {
		return nil, fmt.Errorf("%w: %s needs a children client", model.ErrInvalidArgument, DescribeChildren)
	}
	scheduler, err := newScheduler(deps)
	if err != nil {
		return nil, err
	}
	return &describeChildren{deps: deps, scheduler: scheduler}, nil
}

func (s *describeChildren) Resources(ctx context.Context) ([]augment.Result, error) {
	parents, err := s.deps.Children.ListParents(ctx)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		s.deps.Logger.Debug("No parents found")
		return []augment.Result{}, nil
	}

	var refs []model.ChildRef
	for _, parent := range parents {
		ids, err := s.deps.Children.ListChildren(ctx, parent)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			refs = append(refs, model.ChildRef{Parent: parent, Child: id})
		}
	}

	var group *index.ParentGroup
	if s.deps.Job.EmptyParents == model.EmptyParentsInclude {
		group = index.GroupWithParents(parents, refs)
	} else {
		group = index.Group(refs)
	}
	s.deps.Logger.Debug("Children listed", "parents", len(parents), "children", group.ChildCount())

	return s.scheduler.AugmentByParent(ctx, group, s.deps.Children.DescribeChildren)
}

func newScheduler(deps Deps) (*augment.Scheduler, error) {
	maxWorkers := deps.Job.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = model.DefaultMaxWorkers
	}
	chunkSize := deps.Job.ChunkSize
	if chunkSize == 0 {
		chunkSize = deps.Family.MaxBatchSize
	}
	if chunkSize > deps.Family.MaxBatchSize {
		return nil, fmt.Errorf("%w: chunk size %d exceeds the %s batch size of %d", model.ErrInvalidArgument, chunkSize, deps.Family.Name, deps.Family.MaxBatchSize)
	}
	return augment.NewScheduler(deps.Logger, maxWorkers, chunkSize)
}

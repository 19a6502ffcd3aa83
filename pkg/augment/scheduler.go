// Package augment turns enumerated child references into fully described
// records, fanning out one task per parent on a bounded worker pool.
package augment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/batch"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/index"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

// DescribeFunc fetches the detail of a batch of children of a single parent.
type DescribeFunc func(ctx context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error)

// Result is the outcome of the task bound to a single parent. Records is nil
// whenever Err is set.
type Result struct {
	Parent  model.ParentID
	Records []*model.ChildRecord
	Err     error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type Scheduler struct {
	logger     logging.Logger
	maxWorkers int
	chunkSize  int
}

func NewScheduler(logger logging.Logger, maxWorkers int, chunkSize int) (*Scheduler, error) {
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d: %w", maxWorkers, model.ErrInvalidArgument)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", chunkSize, model.ErrInvalidArgument)
	}

	return &Scheduler{
		logger:     logger,
		maxWorkers: maxWorkers,
		chunkSize:  chunkSize,
	}, nil
}

// Augment describes every child of the group and returns the records of all
// parents whose task succeeded. Order across parents is unspecified.
func (s *Scheduler) Augment(ctx context.Context, group *index.ParentGroup, describe DescribeFunc) ([]*model.ChildRecord, error) {
	results, err := s.AugmentByParent(ctx, group, describe)
	if err != nil {
		return nil, err
	}
	return Merge(results), nil
}

// AugmentByParent runs one task per parent and returns one Result per parent.
// A failing task never fails the call: its error is logged and kept on its
// Result. The returned error is only set when the pool cannot be run at all.
func (s *Scheduler) AugmentByParent(ctx context.Context, group *index.ParentGroup, describe DescribeFunc) ([]Result, error) {
	if describe == nil {
		return nil, fmt.Errorf("describe function is required: %w", model.ErrInvalidArgument)
	}
	if group == nil || group.Len() == 0 {
		return []Result{}, nil
	}

	parents := group.Parents()
	s.logger.Debug("Starting augmentation", "parents", len(parents), "children", group.ChildCount(), "max_workers", s.maxWorkers, "chunk_size", s.chunkSize)

	// Each task owns its slot so no locking is required.
	results := make([]Result, len(parents))

	var g errgroup.Group
	g.SetLimit(s.maxWorkers)
	for i, parent := range parents {
		ids := group.ChildIDs(parent)
		g.Go(func() error {
			results[i] = s.runTask(ctx, parent, ids, describe)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("augmentation work group error: %w", err)
	}

	failed := 0
	for _, r := range results {
		promutil.AugmentationTasksCounter.Inc()
		if r.Failed() {
			failed++
			promutil.AugmentationTaskFailuresCounter.Inc()
			s.logger.Warn("Error fetching children for parent, skipping its records", "parent", r.Parent, "err", r.Err)
		}
	}

	s.logger.Debug("Augmentation finished", "parents", len(parents), "failed_parents", failed)
	return results, nil
}

func (s *Scheduler) runTask(ctx context.Context, parent model.ParentID, ids []model.ChildID, describe DescribeFunc) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Parent: parent, Err: fmt.Errorf("describe panicked: %v", r)}
		}
	}()

	it, err := batch.NewIterator(ids, s.chunkSize)
	if err != nil {
		return Result{Parent: parent, Err: err}
	}

	records := make([]*model.ChildRecord, 0, len(ids))
	for chunk := range it.All() {
		out, err := describe(ctx, parent, chunk)
		if err != nil {
			return Result{Parent: parent, Err: err}
		}
		records = append(records, out...)
	}

	return Result{Parent: parent, Records: records}
}

// Merge concatenates the records of all successful results.
func Merge(results []Result) []*model.ChildRecord {
	total := 0
	for _, r := range results {
		total += len(r.Records)
	}

	out := make([]*model.ChildRecord, 0, total)
	for _, r := range results {
		if r.Failed() {
			continue
		}
		out = append(out, r.Records...)
	}
	return out
}

// Augment is a one-shot form of Scheduler.Augment.
func Augment(ctx context.Context, logger logging.Logger, group *index.ParentGroup, describe DescribeFunc, maxWorkers int, chunkSize int) ([]*model.ChildRecord, error) {
	s, err := NewScheduler(logger, maxWorkers, chunkSize)
	if err != nil {
		return nil, err
	}
	return s.Augment(ctx, group, describe)
}

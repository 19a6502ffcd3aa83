package sources

import (
	"context"
	"errors"
	"sync"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type fakeChildren struct {
	mu sync.Mutex

	parents  []model.ParentID
	children map[model.ParentID][]model.ChildID
	tags     map[model.ChildID][]model.Tag

	listParentsErr  error
	listChildrenErr map[model.ParentID]error
	describeErr     map[model.ParentID]error

	listParentsCalls  int
	listChildrenCalls int
	describeCalls     int
	batchSizes        []int
}

func (f *fakeChildren) ListParents(_ context.Context) ([]model.ParentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listParentsCalls++
	if f.listParentsErr != nil {
		return nil, f.listParentsErr
	}
	return f.parents, nil
}

func (f *fakeChildren) ListChildren(_ context.Context, parent model.ParentID) ([]model.ChildID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listChildrenCalls++
	if err := f.listChildrenErr[parent]; err != nil {
		return nil, err
	}
	return f.children[parent], nil
}

func (f *fakeChildren) DescribeChildren(_ context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	f.batchSizes = append(f.batchSizes, len(ids))
	if err := f.describeErr[parent]; err != nil {
		return nil, err
	}
	records := make([]*model.ChildRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, &model.ChildRecord{
			ID:     id,
			Parent: parent,
			Tags:   append([]model.Tag(nil), f.tags[id]...),
		})
	}
	return records, nil
}

type fakeTagging struct {
	resources []*model.TaggedResource
	err       error
}

func (f *fakeTagging) GetResources(_ context.Context, _ model.ResourceJob, _ string) ([]*model.TaggedResource, error) {
	return f.resources, f.err
}

var errRemote = errors.New("remote failure")

func serviceFamily() config.FamilyConfig {
	return *config.SupportedFamilies.GetFamily(config.FamilyECSService)
}

func testDeps(children *fakeChildren) Deps {
	return Deps{
		Logger:   logging.NewNopLogger(),
		Job:      model.ResourceJob{Name: "services", Type: config.FamilyECSService, MaxWorkers: 2},
		Family:   serviceFamily(),
		Region:   "us-east-1",
		Children: children,
	}
}

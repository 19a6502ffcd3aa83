package augment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/index"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type describeCall struct {
	parent model.ParentID
	ids    []model.ChildID
}

type recordingDescriber struct {
	mu      sync.Mutex
	calls   []describeCall
	failFor map[model.ParentID]int // fail on the n-th (1-based) call for the parent
	perCall map[model.ParentID]int
}

func (r *recordingDescriber) describe(_ context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
	r.mu.Lock()
	r.calls = append(r.calls, describeCall{parent: parent, ids: append([]model.ChildID(nil), ids...)})
	if r.perCall == nil {
		r.perCall = map[model.ParentID]int{}
	}
	r.perCall[parent]++
	n := r.perCall[parent]
	r.mu.Unlock()

	if failAt, ok := r.failFor[parent]; ok && n >= failAt {
		return nil, &model.RemoteCallError{Op: "DescribeServices", Parent: parent, Err: errors.New("access denied")}
	}

	out := make([]*model.ChildRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.ChildRecord{ID: id, Parent: parent})
	}
	return out, nil
}

func (r *recordingDescriber) callsFor(parent model.ParentID) []describeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []describeCall
	for _, c := range r.calls {
		if c.parent == parent {
			out = append(out, c)
		}
	}
	return out
}

func refs(parent string, n int) []model.ChildRef {
	out := make([]model.ChildRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.ChildRef{Parent: model.ParentID(parent), Child: model.ChildID(fmt.Sprintf("%s-%02d", parent, i))})
	}
	return out
}

func ids(records []*model.ChildRecord) []model.ChildID {
	out := make([]model.ChildID, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestNewScheduler_InvalidArguments(t *testing.T) {
	_, err := NewScheduler(logging.NewNopLogger(), 0, 10)
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = NewScheduler(logging.NewNopLogger(), 1, 0)
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = Augment(context.Background(), logging.NewNopLogger(), index.Group(nil), (&recordingDescriber{}).describe, -1, 10)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestAugment_FailingParentIsIsolated(t *testing.T) {
	var all []model.ChildRef
	all = append(all, refs("a", 3)...)
	all = append(all, refs("b", 3)...)
	all = append(all, refs("c", 2)...)
	group := index.Group(all)

	d := &recordingDescriber{failFor: map[model.ParentID]int{"b": 1}}
	records, err := Augment(context.Background(), logging.NewNopLogger(), group, d.describe, 2, 10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []model.ChildID{"a-00", "a-01", "a-02", "c-00", "c-01"}, ids(records))
	for _, r := range records {
		assert.NotEqual(t, model.ParentID("b"), r.Parent)
	}
}

func TestAugment_ChunksSequentiallyWithinParent(t *testing.T) {
	group := index.Group(refs("cluster", 25))
	d := &recordingDescriber{}

	records, err := Augment(context.Background(), logging.NewNopLogger(), group, d.describe, 4, 10)
	require.NoError(t, err)

	calls := d.callsFor("cluster")
	require.Len(t, calls, 3)
	assert.Len(t, calls[0].ids, 10)
	assert.Len(t, calls[1].ids, 10)
	assert.Len(t, calls[2].ids, 5)
	assert.Equal(t, model.ChildID("cluster-00"), calls[0].ids[0])
	assert.Equal(t, model.ChildID("cluster-10"), calls[1].ids[0])
	assert.Equal(t, model.ChildID("cluster-20"), calls[2].ids[0])

	// within a parent the records keep chunk order
	assert.Equal(t, group.ChildIDs("cluster"), ids(records))
}

func TestAugmentByParent_PartialResultsAreDiscarded(t *testing.T) {
	group := index.Group(refs("a", 25))
	d := &recordingDescriber{failFor: map[model.ParentID]int{"a": 2}}

	s, err := NewScheduler(logging.NewNopLogger(), 1, 10)
	require.NoError(t, err)

	results, err := s.AugmentByParent(context.Background(), group, d.describe)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Failed())
	assert.Nil(t, results[0].Records)
	var remoteErr *model.RemoteCallError
	assert.ErrorAs(t, results[0].Err, &remoteErr)
	assert.Equal(t, model.ParentID("a"), remoteErr.Parent)

	// the task stops at the failing chunk
	assert.Len(t, d.callsFor("a"), 2)
	assert.Empty(t, Merge(results))
}

func TestAugment_EmptyGroup(t *testing.T) {
	d := &recordingDescriber{}

	records, err := Augment(context.Background(), logging.NewNopLogger(), index.Group(nil), d.describe, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, d.calls)

	records, err = Augment(context.Background(), logging.NewNopLogger(), nil, d.describe, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAugmentByParent_ParentWithoutChildren(t *testing.T) {
	group := index.GroupWithParents([]model.ParentID{"empty", "a"}, refs("a", 2))
	d := &recordingDescriber{}

	s, err := NewScheduler(logging.NewNopLogger(), 2, 10)
	require.NoError(t, err)

	results, err := s.AugmentByParent(context.Background(), group, d.describe)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.ParentID("empty"), results[0].Parent)
	assert.False(t, results[0].Failed())
	assert.Empty(t, results[0].Records)
	assert.Empty(t, d.callsFor("empty"))

	assert.Equal(t, model.ParentID("a"), results[1].Parent)
	assert.Len(t, results[1].Records, 2)
}

func TestAugment_RespectsMaxWorkers(t *testing.T) {
	var all []model.ChildRef
	for i := 0; i < 12; i++ {
		all = append(all, refs(fmt.Sprintf("p%02d", i), 3)...)
	}
	group := index.Group(all)

	const maxWorkers = 3
	var inFlight, peak int32
	describe := func(_ context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
		current := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if current <= old || atomic.CompareAndSwapInt32(&peak, old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		out := make([]*model.ChildRecord, 0, len(ids))
		for _, id := range ids {
			out = append(out, &model.ChildRecord{ID: id, Parent: parent})
		}
		return out, nil
	}

	records, err := Augment(context.Background(), logging.NewNopLogger(), group, describe, maxWorkers, 2)
	require.NoError(t, err)
	assert.Len(t, records, 36)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(maxWorkers))
}

func TestAugment_PanicInDescribeFailsOnlyThatParent(t *testing.T) {
	group := index.Group(append(refs("ok", 2), refs("boom", 2)...))
	describe := func(_ context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
		if parent == "boom" {
			panic("unexpected nil output")
		}
		return []*model.ChildRecord{{ID: ids[0], Parent: parent}}, nil
	}

	s, err := NewScheduler(logging.NewNopLogger(), 2, 10)
	require.NoError(t, err)

	results, err := s.AugmentByParent(context.Background(), group, describe)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.Contains(t, results[1].Err.Error(), "panicked")
}

func TestAugment_CancelledContextFailsTasks(t *testing.T) {
	group := index.Group(append(refs("a", 2), refs("b", 2)...))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	describe := func(ctx context.Context, _ model.ParentID, _ []model.ChildID) ([]*model.ChildRecord, error) {
		return nil, ctx.Err()
	}

	records, err := Augment(ctx, logging.NewNopLogger(), group, describe, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAugmentByParent_NilDescribe(t *testing.T) {
	s, err := NewScheduler(logging.NewNopLogger(), 1, 1)
	require.NoError(t, err)

	_, err = s.AugmentByParent(context.Background(), index.Group(nil), nil)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

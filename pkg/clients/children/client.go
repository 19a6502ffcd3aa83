package children

import (
	"context"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// Client enumerates and describes the children of one resource family in a
// single region, with a single role.
type Client interface {
	// ListParents returns every parent of the family.
	ListParents(ctx context.Context) ([]model.ParentID, error)

	// ListChildren returns the ids of the children of a parent.
	ListChildren(ctx context.Context, parent model.ParentID) ([]model.ChildID, error)

	// DescribeChildren returns the detail of a batch of children of a
	// parent. The batch must not exceed the family max batch size.
	DescribeChildren(ctx context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error)
}

type limitedConcurrencyClient struct {
	client Client
	sem    chan struct{}
}

func NewLimitedConcurrencyClient(client Client, maxConcurrency int) Client {
	return &limitedConcurrencyClient{
		client: client,
		sem:    make(chan struct{}, maxConcurrency),
	}
}

func (c limitedConcurrencyClient) ListParents(ctx context.Context) ([]model.ParentID, error) {
	c.sem <- struct{}{}
	res, err := c.client.ListParents(ctx)
	<-c.sem
	return res, err
}

func (c limitedConcurrencyClient) ListChildren(ctx context.Context, parent model.ParentID) ([]model.ChildID, error) {
	c.sem <- struct{}{}
	res, err := c.client.ListChildren(ctx, parent)
	<-c.sem
	return res, err
}

func (c limitedConcurrencyClient) DescribeChildren(ctx context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
	c.sem <- struct{}{}
	res, err := c.client.DescribeChildren(ctx, parent, ids)
	<-c.sem
	return res, err
}

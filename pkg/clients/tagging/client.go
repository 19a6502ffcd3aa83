package tagging

import (
	"context"
	"errors"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type Client interface {
	// GetResources returns the tagged children of the job's resource family
	// matching the job's search tags.
	GetResources(ctx context.Context, job model.ResourceJob, region string) ([]*model.TaggedResource, error)
}

var ErrTaggingNotSupported = errors.New("resource family can't be enumerated through the resource groups tagging api")

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

func (c limitedConcurrencyClient) GetResources(ctx context.Context, job model.ResourceJob, region string) ([]*model.TaggedResource, error) {
	c.sem <- struct{}{}
	res, err := c.client.GetResources(ctx, job, region)
	<-c.sem
	return res, err
}

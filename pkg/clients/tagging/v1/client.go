package v1

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

type client struct {
	logger     logging.Logger
	taggingAPI resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
}

func NewClient(logger logging.Logger, taggingAPI resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI) tagging.Client {
	return &client{
		logger:     logger,
		taggingAPI: taggingAPI,
	}
}

func (c client) GetResources(ctx context.Context, job model.ResourceJob, region string) ([]*model.TaggedResource, error) {
	family := config.SupportedFamilies.GetFamily(job.Type)
	if family == nil || !family.SupportsTagging() {
		return nil, fmt.Errorf("%w: %s", tagging.ErrTaggingNotSupported, job.Type)
	}

	var tagFilters []*resourcegroupstaggingapi.TagFilter
	for i := range job.SearchTags {
		// Keys are taken from the slice element, a pointer to the loop variable would be shared
		st := job.SearchTags[i]
		tagFilters = append(tagFilters, &resourcegroupstaggingapi.TagFilter{Key: &st.Key})
	}

	inputparams := &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: aws.StringSlice([]string{family.TagFilter}),
		ResourcesPerPage:    aws.Int64(100), // max allowed value according to API docs
		TagFilters:          tagFilters,
	}

	var resources []*model.TaggedResource
	err := c.taggingAPI.GetResourcesPagesWithContext(ctx, inputparams, func(page *resourcegroupstaggingapi.GetResourcesOutput, lastPage bool) bool {
		promutil.ResourceGroupTaggingAPICounter.Inc()

		for _, resourceTagMapping := range page.ResourceTagMappingList {
			resource := model.TaggedResource{
				ARN:    aws.StringValue(resourceTagMapping.ResourceARN),
				Type:   job.Type,
				Region: region,
				Tags:   make([]model.Tag, 0, len(resourceTagMapping.Tags)),
			}

			for _, t := range resourceTagMapping.Tags {
				resource.Tags = append(resource.Tags, model.Tag{Key: aws.StringValue(t.Key), Value: aws.StringValue(t.Value)})
			}

			if resource.FilterThroughTags(job.SearchTags) {
				resources = append(resources, &resource)
			} else {
				c.logger.Debug("Skipping resource because search tags do not match", "arn", resource.ARN)
			}
		}
		return !lastPage
	})
	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues("GetResources").Inc()
		return nil, &model.RemoteCallError{Op: "GetResources", Err: err}
	}

	c.logger.Debug("GetResourcesPages finished", "total", len(resources))
	return resources, nil
}

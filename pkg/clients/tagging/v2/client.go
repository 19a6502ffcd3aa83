package v2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

type client struct {
	logger     logging.Logger
	taggingAPI resourcegroupstaggingapi.GetResourcesAPIClient
}

func NewClient(logger logging.Logger, taggingAPI resourcegroupstaggingapi.GetResourcesAPIClient) tagging.Client {
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

	var tagFilters []types.TagFilter
	for i := range job.SearchTags {
		st := job.SearchTags[i]

		// GetResources matches values exactly while search tags are regexps, so
		// only the keys are sent and values are matched by FilterThroughTags.
		// https://docs.aws.amazon.com/resourcegroupstagging/latest/APIReference/API_GetResources.html#resourcegrouptagging-GetResources-request-TagFilters
		tagFilters = append(tagFilters, types.TagFilter{Key: &st.Key})
	}
	inputparams := &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: []string{family.TagFilter},
		ResourcesPerPage:    aws.Int32(int32(100)), // max allowed value according to API docs
		TagFilters:          tagFilters,
	}

	var resources []*model.TaggedResource
	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(c.taggingAPI, inputparams, func(options *resourcegroupstaggingapi.GetResourcesPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		promutil.ResourceGroupTaggingAPICounter.Inc()
		page, err := paginator.NextPage(ctx)
		if err != nil {
			promutil.APIRequestErrorsCounter.WithLabelValues("GetResources").Inc()
			return nil, &model.RemoteCallError{Op: "GetResources", Err: err}
		}

		for _, resourceTagMapping := range page.ResourceTagMappingList {
			resource := model.TaggedResource{
				ARN:    aws.ToString(resourceTagMapping.ResourceARN),
				Type:   job.Type,
				Region: region,
				Tags:   make([]model.Tag, 0, len(resourceTagMapping.Tags)),
			}

			for _, t := range resourceTagMapping.Tags {
				resource.Tags = append(resource.Tags, model.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
			}

			if resource.FilterThroughTags(job.SearchTags) {
				resources = append(resources, &resource)
			} else {
				c.logger.Debug("Skipping resource because search tags do not match", "arn", resource.ARN)
			}
		}
	}

	c.logger.Debug("GetResourcesPages finished", "total", len(resources))
	return resources, nil
}

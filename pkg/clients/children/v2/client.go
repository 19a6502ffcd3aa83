package v2

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecs_types "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/storagegateway"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

// ECSAPI is the subset of the ECS client used to enumerate clusters and their children.
type ECSAPI interface {
	ecs.ListClustersAPIClient
	ecs.ListServicesAPIClient
	ecs.ListTasksAPIClient
	ecs.ListContainerInstancesAPIClient
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
	DescribeContainerInstances(ctx context.Context, params *ecs.DescribeContainerInstancesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeContainerInstancesOutput, error)
}

// StorageGatewayAPI is the subset of the Storage Gateway client used to enumerate gateways and volumes.
type StorageGatewayAPI interface {
	storagegateway.ListGatewaysAPIClient
	storagegateway.ListVolumesAPIClient
	DescribeCachediSCSIVolumes(ctx context.Context, params *storagegateway.DescribeCachediSCSIVolumesInput, optFns ...func(*storagegateway.Options)) (*storagegateway.DescribeCachediSCSIVolumesOutput, error)
	DescribeStorediSCSIVolumes(ctx context.Context, params *storagegateway.DescribeStorediSCSIVolumesInput, optFns ...func(*storagegateway.Options)) (*storagegateway.DescribeStorediSCSIVolumesOutput, error)
}

type client struct {
	logger            logging.Logger
	family            config.FamilyConfig
	region            string
	ecsAPI            ECSAPI
	storageGatewayAPI StorageGatewayAPI
}

func NewClient(
	logger logging.Logger,
	family config.FamilyConfig,
	region string,
	ecsAPI ECSAPI,
	storageGatewayAPI StorageGatewayAPI,
) children.Client {
	return &client{
		logger:            logger.With("type", family.Name, "region", region),
		family:            family,
		region:            region,
		ecsAPI:            ecsAPI,
		storageGatewayAPI: storageGatewayAPI,
	}
}

func (c client) implementation() (familyImplementation, error) {
	impl, ok := familyImplementations[c.family.Name]
	if !ok {
		return familyImplementation{}, fmt.Errorf("no client implementation for resource family %q", c.family.Name)
	}
	return impl, nil
}

func (c client) ListParents(ctx context.Context) ([]model.ParentID, error) {
	impl, err := c.implementation()
	if err != nil {
		return nil, err
	}
	if c.family.RegionScoped() {
		return []model.ParentID{model.ParentID(c.region)}, nil
	}
	parents, err := impl.listParents(ctx, c)
	if err != nil {
		return nil, &model.RemoteCallError{Op: c.family.ListParentsCall, Err: err}
	}
	c.logger.Debug("ListParents finished", "parent_type", c.family.ParentType, "total", len(parents))
	return parents, nil
}

func (c client) ListChildren(ctx context.Context, parent model.ParentID) ([]model.ChildID, error) {
	impl, err := c.implementation()
	if err != nil {
		return nil, err
	}
	ids, err := impl.listChildren(ctx, c, parent)
	if err != nil {
		return nil, &model.RemoteCallError{Op: c.family.ListChildrenCall, Parent: parent, Err: err}
	}
	c.logger.Debug("ListChildren finished", "parent", parent, "total", len(ids))
	return ids, nil
}

func (c client) DescribeChildren(ctx context.Context, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
	if len(ids) > c.family.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d ids exceed the %s batch size of %d", model.ErrInvalidArgument, len(ids), c.family.DescribeCall, c.family.MaxBatchSize)
	}
	if len(ids) == 0 {
		return []*model.ChildRecord{}, nil
	}
	impl, err := c.implementation()
	if err != nil {
		return nil, err
	}
	records, err := impl.describe(ctx, c, parent, ids)
	if err != nil {
		return nil, &model.RemoteCallError{Op: c.family.DescribeCall, Parent: parent, Err: err}
	}
	return records, nil
}

// countCall accounts one request to an AWS API.
func countCall(api string, err error) {
	promutil.APIRequestsCounter.WithLabelValues(api).Inc()
	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues(api).Inc()
	}
}

func (c client) newRecord(parent model.ParentID, fields children.Fields) *model.ChildRecord {
	return children.NewRecord(c.family, c.region, parent, fields)
}

func toStrings(ids []model.ChildID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func ecsTags(tags []ecs_types.Tag) []model.Tag {
	out := make([]model.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, model.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}

type familyImplementation struct {
	listParents  func(ctx context.Context, c client) ([]model.ParentID, error)
	listChildren func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error)
	describe     func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error)
}

var familyImplementations = map[string]familyImplementation{
	config.FamilyECSCluster: {
		listChildren: func(ctx context.Context, c client, _ model.ParentID) ([]model.ChildID, error) {
			arns, err := listClusters(ctx, c)
			if err != nil {
				return nil, err
			}
			ids := make([]model.ChildID, 0, len(arns))
			for _, arn := range arns {
				ids = append(ids, model.ChildID(arn))
			}
			return ids, nil
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.ecsAPI.DescribeClusters(ctx, &ecs.DescribeClustersInput{
				Clusters: toStrings(ids),
				Include:  []ecs_types.ClusterField{ecs_types.ClusterFieldTags, ecs_types.ClusterFieldStatistics},
			})
			countCall("DescribeClusters", err)
			if err != nil {
				return nil, err
			}
			logECSFailures(c.logger, parent, out.Failures)

			records := make([]*model.ChildRecord, 0, len(out.Clusters))
			for _, cluster := range out.Clusters {
				record := c.newRecord(parent, children.Fields{
					"clusterArn":  aws.ToString(cluster.ClusterArn),
					"clusterName": aws.ToString(cluster.ClusterName),
				})
				record.Status = aws.ToString(cluster.Status)
				record.Tags = ecsTags(cluster.Tags)
				record.Attributes["activeServicesCount"] = strconv.FormatInt(int64(cluster.ActiveServicesCount), 10)
				record.Attributes["runningTasksCount"] = strconv.FormatInt(int64(cluster.RunningTasksCount), 10)
				record.Attributes["pendingTasksCount"] = strconv.FormatInt(int64(cluster.PendingTasksCount), 10)
				record.Attributes["registeredContainerInstancesCount"] = strconv.FormatInt(int64(cluster.RegisteredContainerInstancesCount), 10)
				records = append(records, record)
			}
			return records, nil
		},
	},
	config.FamilyECSService: {
		listParents: listClusterParents,
		listChildren: func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error) {
			var ids []model.ChildID
			paginator := ecs.NewListServicesPaginator(c.ecsAPI, &ecs.ListServicesInput{
				Cluster: aws.String(string(parent)),
			}, func(options *ecs.ListServicesPaginatorOptions) {
				options.StopOnDuplicateToken = true
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				countCall("ListServices", err)
				if err != nil {
					return nil, err
				}
				for _, arn := range page.ServiceArns {
					ids = append(ids, model.ChildID(arn))
				}
			}
			return ids, nil
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.ecsAPI.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(string(parent)),
				Services: toStrings(ids),
				Include:  []ecs_types.ServiceField{ecs_types.ServiceFieldTags},
			})
			countCall("DescribeServices", err)
			if err != nil {
				return nil, err
			}
			logECSFailures(c.logger, parent, out.Failures)

			records := make([]*model.ChildRecord, 0, len(out.Services))
			for _, svc := range out.Services {
				record := c.newRecord(parent, children.Fields{
					"serviceArn":  aws.ToString(svc.ServiceArn),
					"serviceName": aws.ToString(svc.ServiceName),
					"clusterArn":  aws.ToString(svc.ClusterArn),
				})
				record.Status = aws.ToString(svc.Status)
				record.Tags = ecsTags(svc.Tags)
				record.Attributes["desiredCount"] = strconv.FormatInt(int64(svc.DesiredCount), 10)
				record.Attributes["runningCount"] = strconv.FormatInt(int64(svc.RunningCount), 10)
				if svc.LaunchType != "" {
					record.Attributes["launchType"] = string(svc.LaunchType)
				}
				records = append(records, record)
			}
			return records, nil
		},
	},
	config.FamilyECSTask: {
		listParents: listClusterParents,
		listChildren: func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error) {
			var ids []model.ChildID
			paginator := ecs.NewListTasksPaginator(c.ecsAPI, &ecs.ListTasksInput{
				Cluster: aws.String(string(parent)),
			}, func(options *ecs.ListTasksPaginatorOptions) {
				options.StopOnDuplicateToken = true
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				countCall("ListTasks", err)
				if err != nil {
					return nil, err
				}
				for _, arn := range page.TaskArns {
					ids = append(ids, model.ChildID(arn))
				}
			}
			return ids, nil
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.ecsAPI.DescribeTasks(ctx, &ecs.DescribeTasksInput{
				Cluster: aws.String(string(parent)),
				Tasks:   toStrings(ids),
				Include: []ecs_types.TaskField{ecs_types.TaskFieldTags},
			})
			countCall("DescribeTasks", err)
			if err != nil {
				return nil, err
			}
			logECSFailures(c.logger, parent, out.Failures)

			records := make([]*model.ChildRecord, 0, len(out.Tasks))
			for _, task := range out.Tasks {
				record := c.newRecord(parent, children.Fields{
					"taskArn":    aws.ToString(task.TaskArn),
					"clusterArn": aws.ToString(task.ClusterArn),
				})
				record.Status = aws.ToString(task.LastStatus)
				record.Tags = ecsTags(task.Tags)
				if task.TaskDefinitionArn != nil {
					record.Attributes["taskDefinitionArn"] = *task.TaskDefinitionArn
				}
				if task.Group != nil {
					record.Attributes["group"] = *task.Group
				}
				if task.LaunchType != "" {
					record.Attributes["launchType"] = string(task.LaunchType)
				}
				records = append(records, record)
			}
			return records, nil
		},
	},
	config.FamilyECSContainerInstance: {
		listParents: listClusterParents,
		listChildren: func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error) {
			var ids []model.ChildID
			paginator := ecs.NewListContainerInstancesPaginator(c.ecsAPI, &ecs.ListContainerInstancesInput{
				Cluster: aws.String(string(parent)),
			}, func(options *ecs.ListContainerInstancesPaginatorOptions) {
				options.StopOnDuplicateToken = true
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				countCall("ListContainerInstances", err)
				if err != nil {
					return nil, err
				}
				for _, arn := range page.ContainerInstanceArns {
					ids = append(ids, model.ChildID(arn))
				}
			}
			return ids, nil
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.ecsAPI.DescribeContainerInstances(ctx, &ecs.DescribeContainerInstancesInput{
				Cluster:            aws.String(string(parent)),
				ContainerInstances: toStrings(ids),
				Include:            []ecs_types.ContainerInstanceField{ecs_types.ContainerInstanceFieldTags},
			})
			countCall("DescribeContainerInstances", err)
			if err != nil {
				return nil, err
			}
			logECSFailures(c.logger, parent, out.Failures)

			records := make([]*model.ChildRecord, 0, len(out.ContainerInstances))
			for _, instance := range out.ContainerInstances {
				record := c.newRecord(parent, children.Fields{
					"containerInstanceArn": aws.ToString(instance.ContainerInstanceArn),
				})
				record.Status = aws.ToString(instance.Status)
				record.Tags = ecsTags(instance.Tags)
				if instance.Ec2InstanceId != nil {
					record.Attributes["ec2InstanceId"] = *instance.Ec2InstanceId
				}
				record.Attributes["agentConnected"] = strconv.FormatBool(instance.AgentConnected)
				record.Attributes["runningTasksCount"] = strconv.FormatInt(int64(instance.RunningTasksCount), 10)
				records = append(records, record)
			}
			return records, nil
		},
	},
	config.FamilyStorageGatewayCachedVolume: {
		listParents: listGateways,
		listChildren: func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error) {
			return listVolumes(ctx, c, parent, "CACHED")
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.storageGatewayAPI.DescribeCachediSCSIVolumes(ctx, &storagegateway.DescribeCachediSCSIVolumesInput{
				VolumeARNs: toStrings(ids),
			})
			countCall("DescribeCachediSCSIVolumes", err)
			if err != nil {
				return nil, err
			}

			records := make([]*model.ChildRecord, 0, len(out.CachediSCSIVolumes))
			for _, volume := range out.CachediSCSIVolumes {
				record := c.newRecord(parent, children.Fields{
					"VolumeARN": aws.ToString(volume.VolumeARN),
					"VolumeId":  aws.ToString(volume.VolumeId),
				})
				record.Status = aws.ToString(volume.VolumeStatus)
				if volume.VolumeAttachmentStatus != nil {
					record.Attributes["volumeAttachmentStatus"] = *volume.VolumeAttachmentStatus
				}
				records = append(records, record)
			}
			return records, nil
		},
	},
	config.FamilyStorageGatewayStoredVolume: {
		listParents: listGateways,
		listChildren: func(ctx context.Context, c client, parent model.ParentID) ([]model.ChildID, error) {
			return listVolumes(ctx, c, parent, "STORED")
		},
		describe: func(ctx context.Context, c client, parent model.ParentID, ids []model.ChildID) ([]*model.ChildRecord, error) {
			out, err := c.storageGatewayAPI.DescribeStorediSCSIVolumes(ctx, &storagegateway.DescribeStorediSCSIVolumesInput{
				VolumeARNs: toStrings(ids),
			})
			countCall("DescribeStorediSCSIVolumes", err)
			if err != nil {
				return nil, err
			}

			records := make([]*model.ChildRecord, 0, len(out.StorediSCSIVolumes))
			for _, volume := range out.StorediSCSIVolumes {
				record := c.newRecord(parent, children.Fields{
					"VolumeARN": aws.ToString(volume.VolumeARN),
					"VolumeId":  aws.ToString(volume.VolumeId),
				})
				record.Status = aws.ToString(volume.VolumeStatus)
				if volume.VolumeAttachmentStatus != nil {
					record.Attributes["volumeAttachmentStatus"] = *volume.VolumeAttachmentStatus
				}
				records = append(records, record)
			}
			return records, nil
		},
	},
}

func listClusterParents(ctx context.Context, c client) ([]model.ParentID, error) {
	arns, err := listClusters(ctx, c)
	if err != nil {
		return nil, err
	}
	parents := make([]model.ParentID, 0, len(arns))
	for _, arn := range arns {
		parents = append(parents, model.ParentID(arn))
	}
	return parents, nil
}

func listClusters(ctx context.Context, c client) ([]string, error) {
	var arns []string
	paginator := ecs.NewListClustersPaginator(c.ecsAPI, &ecs.ListClustersInput{}, func(options *ecs.ListClustersPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		countCall("ListClusters", err)
		if err != nil {
			return nil, err
		}
		arns = append(arns, page.ClusterArns...)
	}
	return arns, nil
}

func listGateways(ctx context.Context, c client) ([]model.ParentID, error) {
	var parents []model.ParentID
	paginator := storagegateway.NewListGatewaysPaginator(c.storageGatewayAPI, &storagegateway.ListGatewaysInput{}, func(options *storagegateway.ListGatewaysPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		countCall("ListGateways", err)
		if err != nil {
			return nil, err
		}
		for _, gateway := range page.Gateways {
			parents = append(parents, model.ParentID(aws.ToString(gateway.GatewayARN)))
		}
	}
	return parents, nil
}

func listVolumes(ctx context.Context, c client, parent model.ParentID, volumeType string) ([]model.ChildID, error) {
	var ids []model.ChildID
	paginator := storagegateway.NewListVolumesPaginator(c.storageGatewayAPI, &storagegateway.ListVolumesInput{
		GatewayARN: aws.String(string(parent)),
	}, func(options *storagegateway.ListVolumesPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		countCall("ListVolumes", err)
		if err != nil {
			return nil, err
		}
		for _, volume := range page.VolumeInfos {
			if aws.ToString(volume.VolumeType) != volumeType {
				continue
			}
			ids = append(ids, model.ChildID(aws.ToString(volume.VolumeARN)))
		}
	}
	return ids, nil
}

func logECSFailures(logger logging.Logger, parent model.ParentID, failures []ecs_types.Failure) {
	for _, failure := range failures {
		logger.Debug("ECS describe call reported a failure, skipping resource", "parent", parent, "arn", aws.ToString(failure.Arn), "reason", aws.ToString(failure.Reason))
	}
}

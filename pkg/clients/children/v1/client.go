package v1

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/storagegateway"
	"github.com/aws/aws-sdk-go/service/storagegateway/storagegatewayiface"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

type client struct {
	logger            logging.Logger
	family            config.FamilyConfig
	region            string
	ecsAPI            ecsiface.ECSAPI
	storageGatewayAPI storagegatewayiface.StorageGatewayAPI
}

func NewClient(
	logger logging.Logger,
	family config.FamilyConfig,
	region string,
	ecsAPI ecsiface.ECSAPI,
	storageGatewayAPI storagegatewayiface.StorageGatewayAPI,
) children.Client {
	return &client{
		logger:            logger.With("type", family.Name, "region", region),
		family:            family,
		region:            region,
		ecsAPI:            ecsAPI,
		storageGatewayAPI: storageGatewayAPI,
	}
}

func (c client) ListParents(ctx context.Context) ([]model.ParentID, error) {
	if c.family.RegionScoped() {
		return []model.ParentID{model.ParentID(c.region)}, nil
	}

	var parents []model.ParentID
	var err error

	switch c.family.Service {
	case "ecs":
		err = c.ecsAPI.ListClustersPagesWithContext(ctx, &ecs.ListClustersInput{}, func(page *ecs.ListClustersOutput, _ bool) bool {
			promutil.APIRequestsCounter.WithLabelValues("ListClusters").Inc()
			for _, arn := range page.ClusterArns {
				parents = append(parents, model.ParentID(aws.StringValue(arn)))
			}
			return true
		})
	case "storagegateway":
		err = c.storageGatewayAPI.ListGatewaysPagesWithContext(ctx, &storagegateway.ListGatewaysInput{}, func(page *storagegateway.ListGatewaysOutput, _ bool) bool {
			promutil.APIRequestsCounter.WithLabelValues("ListGateways").Inc()
			for _, gateway := range page.Gateways {
				parents = append(parents, model.ParentID(aws.StringValue(gateway.GatewayARN)))
			}
			return true
		})
	default:
		return nil, c.unsupported()
	}

	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues(c.family.ListParentsCall).Inc()
		return nil, &model.RemoteCallError{Op: c.family.ListParentsCall, Err: err}
	}
	c.logger.Debug("ListParents finished", "parent_type", c.family.ParentType, "total", len(parents))
	return parents, nil
}

func (c client) ListChildren(ctx context.Context, parent model.ParentID) ([]model.ChildID, error) {
	var ids []model.ChildID
	var err error
	api := c.family.ListChildrenCall

	collect := func(arns []*string) bool {
		promutil.APIRequestsCounter.WithLabelValues(api).Inc()
		for _, arn := range arns {
			ids = append(ids, model.ChildID(aws.StringValue(arn)))
		}
		return true
	}

	switch c.family.Name {
	case config.FamilyECSCluster:
		err = c.ecsAPI.ListClustersPagesWithContext(ctx, &ecs.ListClustersInput{}, func(page *ecs.ListClustersOutput, _ bool) bool {
			return collect(page.ClusterArns)
		})
	case config.FamilyECSService:
		err = c.ecsAPI.ListServicesPagesWithContext(ctx, &ecs.ListServicesInput{Cluster: aws.String(string(parent))}, func(page *ecs.ListServicesOutput, _ bool) bool {
			return collect(page.ServiceArns)
		})
	case config.FamilyECSTask:
		err = c.ecsAPI.ListTasksPagesWithContext(ctx, &ecs.ListTasksInput{Cluster: aws.String(string(parent))}, func(page *ecs.ListTasksOutput, _ bool) bool {
			return collect(page.TaskArns)
		})
	case config.FamilyECSContainerInstance:
		err = c.ecsAPI.ListContainerInstancesPagesWithContext(ctx, &ecs.ListContainerInstancesInput{Cluster: aws.String(string(parent))}, func(page *ecs.ListContainerInstancesOutput, _ bool) bool {
			return collect(page.ContainerInstanceArns)
		})
	case config.FamilyStorageGatewayCachedVolume, config.FamilyStorageGatewayStoredVolume:
		volumeType := "CACHED"
		if c.family.Name == config.FamilyStorageGatewayStoredVolume {
			volumeType = "STORED"
		}
		err = c.storageGatewayAPI.ListVolumesPagesWithContext(ctx, &storagegateway.ListVolumesInput{GatewayARN: aws.String(string(parent))}, func(page *storagegateway.ListVolumesOutput, _ bool) bool {
			arns := make([]*string, 0, len(page.VolumeInfos))
			for _, volume := range page.VolumeInfos {
				if aws.StringValue(volume.VolumeType) == volumeType {
					arns = append(arns, volume.VolumeARN)
				}
			}
			return collect(arns)
		})
	default:
		return nil, c.unsupported()
	}

	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues(api).Inc()
		return nil, &model.RemoteCallError{Op: api, Parent: parent, Err: err}
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

	var records []*model.ChildRecord
	var err error
	api := c.family.DescribeCall
	clusterArn := aws.String(string(parent))

	switch c.family.Name {
	case config.FamilyECSCluster:
		var out *ecs.DescribeClustersOutput
		out, err = c.ecsAPI.DescribeClustersWithContext(ctx, &ecs.DescribeClustersInput{
			Clusters: toStringPtrs(ids),
			Include:  aws.StringSlice([]string{ecs.ClusterFieldTags, ecs.ClusterFieldStatistics}),
		})
		if err == nil {
			c.logFailures(parent, out.Failures)
			for _, cluster := range out.Clusters {
				record := c.newRecord(parent, children.Fields{
					"clusterArn":  aws.StringValue(cluster.ClusterArn),
					"clusterName": aws.StringValue(cluster.ClusterName),
				})
				record.Status = aws.StringValue(cluster.Status)
				record.Tags = ecsTags(cluster.Tags)
				record.Attributes["activeServicesCount"] = strconv.FormatInt(aws.Int64Value(cluster.ActiveServicesCount), 10)
				record.Attributes["runningTasksCount"] = strconv.FormatInt(aws.Int64Value(cluster.RunningTasksCount), 10)
				record.Attributes["pendingTasksCount"] = strconv.FormatInt(aws.Int64Value(cluster.PendingTasksCount), 10)
				record.Attributes["registeredContainerInstancesCount"] = strconv.FormatInt(aws.Int64Value(cluster.RegisteredContainerInstancesCount), 10)
				records = append(records, record)
			}
		}
	case config.FamilyECSService:
		var out *ecs.DescribeServicesOutput
		out, err = c.ecsAPI.DescribeServicesWithContext(ctx, &ecs.DescribeServicesInput{
			Cluster:  clusterArn,
			Services: toStringPtrs(ids),
			Include:  aws.StringSlice([]string{ecs.ServiceFieldTags}),
		})
		if err == nil {
			c.logFailures(parent, out.Failures)
			for _, svc := range out.Services {
				record := c.newRecord(parent, children.Fields{
					"serviceArn":  aws.StringValue(svc.ServiceArn),
					"serviceName": aws.StringValue(svc.ServiceName),
					"clusterArn":  aws.StringValue(svc.ClusterArn),
				})
				record.Status = aws.StringValue(svc.Status)
				record.Tags = ecsTags(svc.Tags)
				record.Attributes["desiredCount"] = strconv.FormatInt(aws.Int64Value(svc.DesiredCount), 10)
				record.Attributes["runningCount"] = strconv.FormatInt(aws.Int64Value(svc.RunningCount), 10)
				if svc.LaunchType != nil {
					record.Attributes["launchType"] = *svc.LaunchType
				}
				records = append(records, record)
			}
		}
	case config.FamilyECSTask:
		var out *ecs.DescribeTasksOutput
		out, err = c.ecsAPI.DescribeTasksWithContext(ctx, &ecs.DescribeTasksInput{
			Cluster: clusterArn,
			Tasks:   toStringPtrs(ids),
			Include: aws.StringSlice([]string{ecs.TaskFieldTags}),
		})
		if err == nil {
			c.logFailures(parent, out.Failures)
			for _, task := range out.Tasks {
				record := c.newRecord(parent, children.Fields{
					"taskArn":    aws.StringValue(task.TaskArn),
					"clusterArn": aws.StringValue(task.ClusterArn),
				})
				record.Status = aws.StringValue(task.LastStatus)
				record.Tags = ecsTags(task.Tags)
				if task.TaskDefinitionArn != nil {
					record.Attributes["taskDefinitionArn"] = *task.TaskDefinitionArn
				}
				if task.Group != nil {
					record.Attributes["group"] = *task.Group
				}
				if task.LaunchType != nil {
					record.Attributes["launchType"] = *task.LaunchType
				}
				records = append(records, record)
			}
		}
	case config.FamilyECSContainerInstance:
		var out *ecs.DescribeContainerInstancesOutput
		out, err = c.ecsAPI.DescribeContainerInstancesWithContext(ctx, &ecs.DescribeContainerInstancesInput{
			Cluster:            clusterArn,
			ContainerInstances: toStringPtrs(ids),
			Include:            aws.StringSlice([]string{ecs.ContainerInstanceFieldTags}),
		})
		if err == nil {
			c.logFailures(parent, out.Failures)
			for _, instance := range out.ContainerInstances {
				record := c.newRecord(parent, children.Fields{
					"containerInstanceArn": aws.StringValue(instance.ContainerInstanceArn),
				})
				record.Status = aws.StringValue(instance.Status)
				record.Tags = ecsTags(instance.Tags)
				if instance.Ec2InstanceId != nil {
					record.Attributes["ec2InstanceId"] = *instance.Ec2InstanceId
				}
				record.Attributes["agentConnected"] = strconv.FormatBool(aws.BoolValue(instance.AgentConnected))
				record.Attributes["runningTasksCount"] = strconv.FormatInt(aws.Int64Value(instance.RunningTasksCount), 10)
				records = append(records, record)
			}
		}
	case config.FamilyStorageGatewayCachedVolume:
		var out *storagegateway.DescribeCachediSCSIVolumesOutput
		out, err = c.storageGatewayAPI.DescribeCachediSCSIVolumesWithContext(ctx, &storagegateway.DescribeCachediSCSIVolumesInput{
			VolumeARNs: toStringPtrs(ids),
		})
		if err == nil {
			for _, volume := range out.CachediSCSIVolumes {
				record := c.newRecord(parent, children.Fields{
					"VolumeARN": aws.StringValue(volume.VolumeARN),
					"VolumeId":  aws.StringValue(volume.VolumeId),
				})
				record.Status = aws.StringValue(volume.VolumeStatus)
				if volume.VolumeAttachmentStatus != nil {
					record.Attributes["volumeAttachmentStatus"] = *volume.VolumeAttachmentStatus
				}
				records = append(records, record)
			}
		}
	case config.FamilyStorageGatewayStoredVolume:
		var out *storagegateway.DescribeStorediSCSIVolumesOutput
		out, err = c.storageGatewayAPI.DescribeStorediSCSIVolumesWithContext(ctx, &storagegateway.DescribeStorediSCSIVolumesInput{
			VolumeARNs: toStringPtrs(ids),
		})
		if err == nil {
			for _, volume := range out.StorediSCSIVolumes {
				record := c.newRecord(parent, children.Fields{
					"VolumeARN": aws.StringValue(volume.VolumeARN),
					"VolumeId":  aws.StringValue(volume.VolumeId),
				})
				record.Status = aws.StringValue(volume.VolumeStatus)
				if volume.VolumeAttachmentStatus != nil {
					record.Attributes["volumeAttachmentStatus"] = *volume.VolumeAttachmentStatus
				}
				records = append(records, record)
			}
		}
	default:
		return nil, c.unsupported()
	}

	promutil.APIRequestsCounter.WithLabelValues(api).Inc()
	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues(api).Inc()
		return nil, &model.RemoteCallError{Op: api, Parent: parent, Err: err}
	}
	if records == nil {
		records = []*model.ChildRecord{}
	}
	return records, nil
}

func (c client) unsupported() error {
	return fmt.Errorf("no client implementation for resource family %q", c.family.Name)
}

func (c client) newRecord(parent model.ParentID, fields children.Fields) *model.ChildRecord {
	return children.NewRecord(c.family, c.region, parent, fields)
}

func (c client) logFailures(parent model.ParentID, failures []*ecs.Failure) {
	for _, failure := range failures {
		c.logger.Debug("ECS describe call reported a failure, skipping resource", "parent", parent, "arn", aws.StringValue(failure.Arn), "reason", aws.StringValue(failure.Reason))
	}
}

func toStringPtrs(ids []model.ChildID) []*string {
	out := make([]*string, 0, len(ids))
	for _, id := range ids {
		out = append(out, aws.String(string(id)))
	}
	return out
}

func ecsTags(tags []*ecs.Tag) []model.Tag {
	out := make([]model.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, model.Tag{Key: aws.StringValue(t.Key), Value: aws.StringValue(t.Value)})
	}
	return out
}

package config

import (
	"github.com/grafana/regexp"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// FamilyConfig describes a family of child resources, the API calls used to
// enumerate and describe them and the fields identifying them.
type FamilyConfig struct {
	// Name is the identifier used as job type in the config file
	Name string
	// Service is the AWS service exposing the resources (e.g. ecs)
	Service string
	// ParentType is the resource type of the parent (e.g. cluster). Families
	// with ParentTypeRegion have the region as their only parent and no
	// ListParentsCall.
	ParentType string

	ListParentsCall  string
	ListChildrenCall string
	DescribeCall     string

	// MaxBatchSize is the maximum number of identifiers accepted by DescribeCall
	MaxBatchSize int

	// IDField, NameField and ParentField name the fields of the describe
	// output holding the child id, the child name and the parent reference.
	// The record name is the last path segment of the NameField value.
	// Without a ParentField the parent of the request is used.
	IDField     string
	NameField   string
	ParentField string

	// TagFilter is the resource type filter of the Resource Groups Tagging API
	// matching the children. Empty when children can't be tagged.
	TagFilter string

	// ParentRegexp extracts the parent from a child ARN, ParentTemplate
	// rebuilds the parent ARN from its named groups (see regexp.Expand).
	ParentRegexp   *regexp.Regexp
	ParentTemplate string

	// ContainerDimension and ChildDimension name the monitoring dimensions
	// holding the parent short name and the child name.
	ContainerDimension string
	ChildDimension     string
}

// ParentFromChildARN derives the parent of a child from its ARN.
func (fc FamilyConfig) ParentFromChildARN(arn string) (model.ParentID, bool) {
	if fc.ParentRegexp == nil {
		return "", false
	}
	match := fc.ParentRegexp.FindStringSubmatchIndex(arn)
	if match == nil {
		return "", false
	}
	parent := fc.ParentRegexp.ExpandString(nil, fc.ParentTemplate, arn, match)
	return model.ParentID(parent), true
}

// RegionScoped tells whether the region itself is the parent of the children.
func (fc FamilyConfig) RegionScoped() bool {
	return fc.ParentType == ParentTypeRegion
}

// SupportsTagging tells whether children can be enumerated through the
// Resource Groups Tagging API.
func (fc FamilyConfig) SupportsTagging() bool {
	return fc.TagFilter != "" && fc.ParentRegexp != nil
}

type familyConfigs []FamilyConfig

func (fc familyConfigs) GetFamily(name string) *FamilyConfig {
	for _, f := range fc {
		if f.Name == name {
			return &f
		}
	}
	return nil
}

func (fc familyConfigs) Names() []string {
	names := make([]string, 0, len(fc))
	for _, f := range fc {
		names = append(names, f.Name)
	}
	return names
}

const (
	FamilyECSCluster                 = "ecs-cluster"
	FamilyECSService                 = "ecs-service"
	FamilyECSTask                    = "ecs-task"
	FamilyECSContainerInstance       = "ecs-container-instance"
	FamilyStorageGatewayCachedVolume = "storagegateway-cached-volume"
	FamilyStorageGatewayStoredVolume = "storagegateway-stored-volume"
)

const ParentTypeRegion = "region"

const ecsClusterTemplate = "${prefix}:cluster/${cluster}"

var SupportedFamilies = familyConfigs{
	{
		Name:             FamilyECSCluster,
		Service:          "ecs",
		ParentType:       ParentTypeRegion,
		ListChildrenCall: "ListClusters",
		DescribeCall:     "DescribeClusters",
		MaxBatchSize:     100,
		IDField:          "clusterArn",
		NameField:        "clusterName",
		TagFilter:        "ecs:cluster",
		ParentRegexp:     regexp.MustCompile(`^arn:[^:]+:ecs:(?P<region>[^:]+):[^:]+:cluster/[^/]+$`),
		ParentTemplate:   "${region}",
		ChildDimension:   "ClusterName",
	},
	{
		Name:               FamilyECSService,
		Service:            "ecs",
		ParentType:         "cluster",
		ListParentsCall:    "ListClusters",
		ListChildrenCall:   "ListServices",
		DescribeCall:       "DescribeServices",
		MaxBatchSize:       10,
		IDField:            "serviceArn",
		NameField:          "serviceName",
		ParentField:        "clusterArn",
		TagFilter:          "ecs:service",
		ParentRegexp:       regexp.MustCompile(`^(?P<prefix>arn:[^:]+:ecs:[^:]+:[^:]+):service/(?P<cluster>[^/]+)/[^/]+$`),
		ParentTemplate:     ecsClusterTemplate,
		ContainerDimension: "ClusterName",
		ChildDimension:     "ServiceName",
	},
	{
		Name:               FamilyECSTask,
		Service:            "ecs",
		ParentType:         "cluster",
		ListParentsCall:    "ListClusters",
		ListChildrenCall:   "ListTasks",
		DescribeCall:       "DescribeTasks",
		MaxBatchSize:       100,
		IDField:            "taskArn",
		NameField:          "taskArn",
		ParentField:        "clusterArn",
		TagFilter:          "ecs:task",
		ParentRegexp:       regexp.MustCompile(`^(?P<prefix>arn:[^:]+:ecs:[^:]+:[^:]+):task/(?P<cluster>[^/]+)/[^/]+$`),
		ParentTemplate:     ecsClusterTemplate,
		ContainerDimension: "ClusterName",
		ChildDimension:     "TaskId",
	},
	{
		Name:               FamilyECSContainerInstance,
		Service:            "ecs",
		ParentType:         "cluster",
		ListParentsCall:    "ListClusters",
		ListChildrenCall:   "ListContainerInstances",
		DescribeCall:       "DescribeContainerInstances",
		MaxBatchSize:       100,
		IDField:            "containerInstanceArn",
		NameField:          "containerInstanceArn",
		TagFilter:          "ecs:container-instance",
		ParentRegexp:       regexp.MustCompile(`^(?P<prefix>arn:[^:]+:ecs:[^:]+:[^:]+):container-instance/(?P<cluster>[^/]+)/[^/]+$`),
		ParentTemplate:     ecsClusterTemplate,
		ContainerDimension: "ClusterName",
		ChildDimension:     "ContainerInstanceId",
	},
	{
		Name:               FamilyStorageGatewayCachedVolume,
		Service:            "storagegateway",
		ParentType:         "gateway",
		ListParentsCall:    "ListGateways",
		ListChildrenCall:   "ListVolumes",
		DescribeCall:       "DescribeCachediSCSIVolumes",
		MaxBatchSize:       20,
		IDField:            "VolumeARN",
		NameField:          "VolumeId",
		ContainerDimension: "GatewayId",
		ChildDimension:     "VolumeId",
	},
	{
		Name:               FamilyStorageGatewayStoredVolume,
		Service:            "storagegateway",
		ParentType:         "gateway",
		ListParentsCall:    "ListGateways",
		ListChildrenCall:   "ListVolumes",
		DescribeCall:       "DescribeStorediSCSIVolumes",
		MaxBatchSize:       20,
		IDField:            "VolumeARN",
		NameField:          "VolumeId",
		ContainerDimension: "GatewayId",
		ChildDimension:     "VolumeId",
	},
}

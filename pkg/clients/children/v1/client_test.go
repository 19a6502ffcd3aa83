package v1

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/storagegateway"
	"github.com/aws/aws-sdk-go/service/storagegateway/storagegatewayiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

const (
	clusterArn = "arn:aws:ecs:us-east-1:123456789012:cluster/prod"
	gatewayArn = "arn:aws:storagegateway:us-east-1:123456789012:gateway/sgw-12A3456B"
)

type fakeECS struct {
	ecsiface.ECSAPI

	servicePages [][]string
	listErr      error

	listClustersCalls int
}

func (f *fakeECS) ListClustersPagesWithContext(_ aws.Context, _ *ecs.ListClustersInput, fn func(*ecs.ListClustersOutput, bool) bool, _ ...request.Option) error {
	f.listClustersCalls++
	fn(&ecs.ListClustersOutput{ClusterArns: aws.StringSlice([]string{clusterArn})}, true)
	return nil
}

func (f *fakeECS) DescribeClustersWithContext(_ aws.Context, input *ecs.DescribeClustersInput, _ ...request.Option) (*ecs.DescribeClustersOutput, error) {
	out := &ecs.DescribeClustersOutput{}
	for _, arn := range input.Clusters {
		out.Clusters = append(out.Clusters, &ecs.Cluster{
			ClusterArn:          arn,
			ClusterName:         aws.String("prod"),
			Status:              aws.String("ACTIVE"),
			ActiveServicesCount: aws.Int64(4),
			RunningTasksCount:   aws.Int64(7),
		})
	}
	return out, nil
}

func (f *fakeECS) ListServicesPagesWithContext(_ aws.Context, _ *ecs.ListServicesInput, fn func(*ecs.ListServicesOutput, bool) bool, _ ...request.Option) error {
	if f.listErr != nil {
		return f.listErr
	}
	for i, page := range f.servicePages {
		if !fn(&ecs.ListServicesOutput{ServiceArns: aws.StringSlice(page)}, i == len(f.servicePages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeECS) DescribeServicesWithContext(_ aws.Context, input *ecs.DescribeServicesInput, _ ...request.Option) (*ecs.DescribeServicesOutput, error) {
	out := &ecs.DescribeServicesOutput{
		Failures: []*ecs.Failure{{Arn: aws.String("arn:aws:ecs:us-east-1:123456789012:service/prod/gone"), Reason: aws.String("MISSING")}},
	}
	for _, arn := range input.Services {
		if aws.StringValue(arn) == "arn:aws:ecs:us-east-1:123456789012:service/prod/gone" {
			continue
		}
		out.Services = append(out.Services, &ecs.Service{
			ServiceArn:   arn,
			ServiceName:  aws.String("api"),
			ClusterArn:   aws.String(clusterArn),
			Status:       aws.String("ACTIVE"),
			DesiredCount: aws.Int64(3),
			RunningCount: aws.Int64(3),
		})
	}
	return out, nil
}

type fakeStorageGateway struct {
	storagegatewayiface.StorageGatewayAPI
}

func (f *fakeStorageGateway) ListGatewaysPagesWithContext(_ aws.Context, _ *storagegateway.ListGatewaysInput, fn func(*storagegateway.ListGatewaysOutput, bool) bool, _ ...request.Option) error {
	fn(&storagegateway.ListGatewaysOutput{Gateways: []*storagegateway.GatewayInfo{{GatewayARN: aws.String(gatewayArn)}}}, true)
	return nil
}

func (f *fakeStorageGateway) ListVolumesPagesWithContext(_ aws.Context, _ *storagegateway.ListVolumesInput, fn func(*storagegateway.ListVolumesOutput, bool) bool, _ ...request.Option) error {
	fn(&storagegateway.ListVolumesOutput{VolumeInfos: []*storagegateway.VolumeInfo{
		{VolumeARN: aws.String(gatewayArn + "/volume/vol-1"), VolumeType: aws.String("CACHED")},
		{VolumeARN: aws.String(gatewayArn + "/volume/vol-2"), VolumeType: aws.String("STORED")},
	}}, true)
	return nil
}

func (f *fakeStorageGateway) DescribeStorediSCSIVolumesWithContext(_ aws.Context, input *storagegateway.DescribeStorediSCSIVolumesInput, _ ...request.Option) (*storagegateway.DescribeStorediSCSIVolumesOutput, error) {
	out := &storagegateway.DescribeStorediSCSIVolumesOutput{}
	for _, arn := range input.VolumeARNs {
		out.StorediSCSIVolumes = append(out.StorediSCSIVolumes, &storagegateway.StorediSCSIVolume{
			VolumeARN:              arn,
			VolumeId:               aws.String("vol-2"),
			VolumeStatus:           aws.String("AVAILABLE"),
			VolumeAttachmentStatus: aws.String("ATTACHED"),
		})
	}
	return out, nil
}

func newTestClient(t *testing.T, familyName string, ecsAPI ecsiface.ECSAPI, sgwAPI storagegatewayiface.StorageGatewayAPI) *client {
	t.Helper()
	family := config.SupportedFamilies.GetFamily(familyName)
	require.NotNil(t, family)
	return NewClient(logging.NewNopLogger(), *family, "us-east-1", ecsAPI, sgwAPI).(*client)
}

func TestECSServices(t *testing.T) {
	fake := &fakeECS{servicePages: [][]string{
		{"arn:aws:ecs:us-east-1:123456789012:service/prod/api"},
		{"arn:aws:ecs:us-east-1:123456789012:service/prod/gone"},
	}}
	c := newTestClient(t, config.FamilyECSService, fake, nil)

	parents, err := c.ListParents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ParentID{clusterArn}, parents)

	ids, err := c.ListChildren(context.Background(), clusterArn)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	records, err := c.DescribeChildren(context.Background(), clusterArn, ids)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "api", records[0].Name)
	assert.Equal(t, model.ParentID(clusterArn), records[0].Parent)
	assert.Equal(t, "3", records[0].Attributes["desiredCount"])
}

func TestECSClusters(t *testing.T) {
	fake := &fakeECS{}
	c := newTestClient(t, config.FamilyECSCluster, fake, nil)

	parents, err := c.ListParents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ParentID{"us-east-1"}, parents)
	assert.Zero(t, fake.listClustersCalls)

	ids, err := c.ListChildren(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, []model.ChildID{clusterArn}, ids)
	assert.Equal(t, 1, fake.listClustersCalls)

	records, err := c.DescribeChildren(context.Background(), "us-east-1", ids)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.ChildID(clusterArn), records[0].ID)
	assert.Equal(t, "prod", records[0].Name)
	assert.Equal(t, model.ParentID("us-east-1"), records[0].Parent)
	assert.Equal(t, "ACTIVE", records[0].Status)
	assert.Equal(t, "4", records[0].Attributes["activeServicesCount"])
	assert.Equal(t, "7", records[0].Attributes["runningTasksCount"])
	assert.Equal(t, "0", records[0].Attributes["pendingTasksCount"])

	_, err = c.DescribeChildren(context.Background(), "us-east-1", make([]model.ChildID, 101))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestListChildrenError(t *testing.T) {
	fake := &fakeECS{listErr: errors.New("AccessDenied")}
	c := newTestClient(t, config.FamilyECSService, fake, nil)

	_, err := c.ListChildren(context.Background(), clusterArn)
	var remoteErr *model.RemoteCallError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "ListServices", remoteErr.Op)
	assert.Equal(t, model.ParentID(clusterArn), remoteErr.Parent)
}

func TestStoredVolumes(t *testing.T) {
	c := newTestClient(t, config.FamilyStorageGatewayStoredVolume, nil, &fakeStorageGateway{})

	parents, err := c.ListParents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ParentID{gatewayArn}, parents)

	ids, err := c.ListChildren(context.Background(), gatewayArn)
	require.NoError(t, err)
	assert.Equal(t, []model.ChildID{gatewayArn + "/volume/vol-2"}, ids)

	records, err := c.DescribeChildren(context.Background(), gatewayArn, ids)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vol-2", records[0].Name)
	assert.Equal(t, "ATTACHED", records[0].Attributes["volumeAttachmentStatus"])
}

func TestDescribeChildrenBatchLimit(t *testing.T) {
	c := newTestClient(t, config.FamilyStorageGatewayStoredVolume, nil, &fakeStorageGateway{})

	_, err := c.DescribeChildren(context.Background(), gatewayArn, make([]model.ChildID, 21))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

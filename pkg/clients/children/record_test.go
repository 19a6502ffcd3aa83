package children

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

func TestNewRecord(t *testing.T) {
	testCases := []struct {
		name     string
		family   string
		parent   model.ParentID
		fields   Fields
		expected *model.ChildRecord
	}{
		{
			name:   "parent reported by the describe output",
			family: config.FamilyECSService,
			parent: "arn:aws:ecs:us-east-1:123456789012:cluster/requested",
			fields: Fields{
				"serviceArn":  "arn:aws:ecs:us-east-1:123456789012:service/prod/api",
				"serviceName": "api",
				"clusterArn":  "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			},
			expected: &model.ChildRecord{
				ID:     "arn:aws:ecs:us-east-1:123456789012:service/prod/api",
				Name:   "api",
				Parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			},
		},
		{
			name:   "empty reported parent keeps the requested one",
			family: config.FamilyECSTask,
			parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			fields: Fields{
				"taskArn":    "arn:aws:ecs:us-east-1:123456789012:task/prod/0123abcd",
				"clusterArn": "",
			},
			expected: &model.ChildRecord{
				ID:     "arn:aws:ecs:us-east-1:123456789012:task/prod/0123abcd",
				Name:   "0123abcd",
				Parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			},
		},
		{
			name:   "family without parent field ignores reported parents",
			family: config.FamilyECSContainerInstance,
			parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			fields: Fields{
				"containerInstanceArn": "arn:aws:ecs:us-east-1:123456789012:container-instance/prod/4b6d45ea",
				"clusterArn":           "arn:aws:ecs:us-east-1:123456789012:cluster/other",
			},
			expected: &model.ChildRecord{
				ID:     "arn:aws:ecs:us-east-1:123456789012:container-instance/prod/4b6d45ea",
				Name:   "4b6d45ea",
				Parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			},
		},
		{
			name:   "region scoped family",
			family: config.FamilyECSCluster,
			parent: "us-east-1",
			fields: Fields{
				"clusterArn":  "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
				"clusterName": "prod",
			},
			expected: &model.ChildRecord{
				ID:     "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
				Name:   "prod",
				Parent: "us-east-1",
			},
		},
		{
			name:   "storage gateway volume",
			family: config.FamilyStorageGatewayStoredVolume,
			parent: "arn:aws:storagegateway:us-east-1:123456789012:gateway/sgw-12A3456B",
			fields: Fields{
				"VolumeARN": "arn:aws:storagegateway:us-east-1:123456789012:gateway/sgw-12A3456B/volume/vol-1",
				"VolumeId":  "vol-1",
			},
			expected: &model.ChildRecord{
				ID:     "arn:aws:storagegateway:us-east-1:123456789012:gateway/sgw-12A3456B/volume/vol-1",
				Name:   "vol-1",
				Parent: "arn:aws:storagegateway:us-east-1:123456789012:gateway/sgw-12A3456B",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			family := config.SupportedFamilies.GetFamily(tc.family)
			require.NotNil(t, family)

			tc.expected.Type = tc.family
			tc.expected.Region = "us-east-1"
			tc.expected.Attributes = map[string]string{}
			assert.Equal(t, tc.expected, NewRecord(*family, "us-east-1", tc.parent, tc.fields))
		})
	}
}

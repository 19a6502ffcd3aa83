// Package dimensions maps described child resources to the monitoring
// dimensions identifying them in CloudWatch.
package dimensions

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// For returns the container dimension, built from the short name of the
// parent, followed by the child dimension holding the record name. A
// dimension with an empty value is left out.
func For(family config.FamilyConfig, record *model.ChildRecord) []model.Dimension {
	if record == nil {
		return nil
	}

	dims := make([]model.Dimension, 0, 2)
	if family.ContainerDimension != "" {
		if parent := ShortName(string(record.Parent)); parent != "" {
			dims = append(dims, model.Dimension{Name: family.ContainerDimension, Value: parent})
		}
	}
	if family.ChildDimension != "" && record.Name != "" {
		dims = append(dims, model.Dimension{Name: family.ChildDimension, Value: record.Name})
	}
	return dims
}

// ShortName returns the part of an identifier after its last "/", or the
// whole identifier when there is none.
func ShortName(id string) string {
	return id[strings.LastIndex(id, "/")+1:]
}

// ToCloudwatch converts dimensions to their CloudWatch API representation.
func ToCloudwatch(dims []model.Dimension) []types.Dimension {
	out := make([]types.Dimension, 0, len(dims))
	for _, d := range dims {
		out = append(out, types.Dimension{
			Name:  aws.String(d.Name),
			Value: aws.String(d.Value),
		})
	}
	return out
}

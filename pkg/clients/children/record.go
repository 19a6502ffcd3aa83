package children

import (
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/dimensions"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// Fields holds the identifying fields of one described child, keyed by the
// names used in the describe output (e.g. serviceArn).
type Fields map[string]string

// NewRecord builds the record of a described child from the fields named by
// the family. The parent of the request is kept unless the family has a
// ParentField and the describe output filled it.
func NewRecord(family config.FamilyConfig, region string, parent model.ParentID, fields Fields) *model.ChildRecord {
	if family.ParentField != "" {
		if reported := fields[family.ParentField]; reported != "" {
			parent = model.ParentID(reported)
		}
	}
	return &model.ChildRecord{
		ID:         model.ChildID(fields[family.IDField]),
		Name:       dimensions.ShortName(fields[family.NameField]),
		Parent:     parent,
		Type:       family.Name,
		Region:     region,
		Attributes: map[string]string{},
	}
}

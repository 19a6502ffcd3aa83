package model

import (
	"github.com/grafana/regexp"
)

const (
	DefaultMaxWorkers = 3
	DefaultAPIVersion = "v1alpha1"
)

// EmptyParentsPolicy controls whether a parent that was listed but has no
// children shows up in per-parent results.
type EmptyParentsPolicy string

const (
	EmptyParentsOmit    EmptyParentsPolicy = "omit"
	EmptyParentsInclude EmptyParentsPolicy = "include"
)

// ParentID uniquely names a container resource, e.g. an ECS cluster ARN.
type ParentID string

// ChildID names a child resource within its parent, e.g. an ECS service ARN.
type ChildID string

// ChildRef is a child discovered during enumeration, before its detail is known.
type ChildRef struct {
	Parent ParentID
	Child  ChildID

	// Tags found during enumeration, if the enumeration source returns them.
	Tags []Tag
}

// ChildRecord is the fully described child resource.
type ChildRecord struct {
	// ID is the unique identifier of the child, usually its ARN
	ID ChildID

	// Name is the short, human readable name of the child
	Name string

	// Parent is the reference back to the parent resource the child belongs to
	Parent ParentID

	// Type is the resource family (e.g. ecs-service)
	Type string

	// Region is the AWS region the child lives in
	Region string

	// Status as reported by the describe call, when there is one
	Status string

	Tags []Tag

	// Attributes holds additional scalar fields of the describe output
	Attributes map[string]string
}

type Tag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type Dimension struct {
	Name  string
	Value string
}

type Role struct {
	RoleArn    string
	ExternalID string
}

type JobsConfig struct {
	StsRegion string
	Jobs      []ResourceJob
}

// ResourceJob describes one enumeration of a resource family over a set of
// regions and roles.
type ResourceJob struct {
	Name         string
	Type         string
	Source       string
	Regions      []string
	Roles        []Role
	SearchTags   []SearchTag
	CustomTags   []Tag
	MaxWorkers   int
	ChunkSize    int
	EmptyParents EmptyParentsPolicy
}

type SearchTag struct {
	Key   string
	Value *regexp.Regexp
}

// TaggedResource is an AWS resource with tags
type TaggedResource struct {
	// ARN is the unique AWS ARN (Amazon Resource Name) of the resource
	ARN string

	// Type identifies the resource family the resource was looked up for
	Type string

	// Region is the AWS regions that the resource belongs to
	Region string

	// Tags is a set of tags associated to the resource
	Tags []Tag
}

// FilterThroughTags returns true if all filterTags match
// with tags of the TaggedResource, returns false otherwise.
func (r TaggedResource) FilterThroughTags(filterTags []SearchTag) bool {
	if len(filterTags) == 0 {
		return true
	}

	tagFilterMatches := 0

	for _, resourceTag := range r.Tags {
		for _, filterTag := range filterTags {
			if resourceTag.Key == filterTag.Key {
				if !filterTag.Value.MatchString(resourceTag.Value) {
					return false
				}
				// A resource needs to match all SearchTags to be returned, so we track the number of tag filter
				// matches to ensure it matches the number of tag filters at the end
				tagFilterMatches++
			}
		}
	}

	return tagFilterMatches == len(filterTags)
}

// ScrapeContext identifies where a set of results was gathered from.
type ScrapeContext struct {
	Region       string
	AccountID    string
	AccountAlias string
	CustomTags   []Tag
}

// ChildResourceResult are the records discovered by a single job run.
type ChildResourceResult struct {
	Context *ScrapeContext
	JobName string
	Type    string
	Data    []*ChildRecord
}

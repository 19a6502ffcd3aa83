package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/grafana/regexp"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type ScrapeConf struct {
	APIVersion string `yaml:"apiVersion"`
	StsRegion  string `yaml:"sts-region"`
	Jobs       []*Job `yaml:"jobs"`
}

type Tag struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Job struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Source       string   `yaml:"source"`
	Regions      []string `yaml:"regions"`
	Roles        []Role   `yaml:"roles"`
	SearchTags   []Tag    `yaml:"searchTags"`
	CustomTags   []Tag    `yaml:"customTags"`
	MaxWorkers   int      `yaml:"maxWorkers"`
	ChunkSize    int      `yaml:"chunkSize"`
	EmptyParents string   `yaml:"emptyParents"`
}

type Role struct {
	RoleArn    string `yaml:"roleArn"`
	ExternalID string `yaml:"externalId"`
}

func (r *Role) ValidateRole(roleIdx int, parent string) error {
	if r.RoleArn == "" && r.ExternalID != "" {
		return fmt.Errorf("Role [%d] in %v: RoleArn should not be empty", roleIdx, parent)
	}

	return nil
}

func (c *ScrapeConf) Load(file string, logger logging.Logger) (model.JobsConfig, error) {
	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return model.JobsConfig{}, err
	}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return model.JobsConfig{}, err
	}

	logConfigErrors(yamlFile, logger)

	for _, job := range c.Jobs {
		if len(job.Roles) == 0 {
			job.Roles = []Role{{}} // use current IAM role
		}
	}

	return c.Validate()
}

func (c *ScrapeConf) Validate() (model.JobsConfig, error) {
	if len(c.Jobs) == 0 {
		return model.JobsConfig{}, fmt.Errorf("At least 1 job must be defined")
	}

	names := make(map[string]int, len(c.Jobs))
	for idx, job := range c.Jobs {
		if err := job.validateJob(idx); err != nil {
			return model.JobsConfig{}, err
		}
		if other, exists := names[job.Name]; exists {
			return model.JobsConfig{}, fmt.Errorf("Job [%s/%d]: Name is already used by job [%d]", job.Name, idx, other)
		}
		names[job.Name] = idx
	}

	if c.APIVersion != "" && c.APIVersion != model.DefaultAPIVersion {
		return model.JobsConfig{}, fmt.Errorf("unknown apiVersion value '%s'", c.APIVersion)
	}

	return c.toModelConfig(), nil
}

func (j *Job) validateJob(jobIdx int) error {
	if j.Name == "" {
		return fmt.Errorf("Job [%d]: Name should not be empty", jobIdx)
	}
	if j.Type == "" {
		return fmt.Errorf("Job [%s/%d]: Type should not be empty", j.Name, jobIdx)
	}
	family := SupportedFamilies.GetFamily(j.Type)
	if family == nil {
		return fmt.Errorf("Job [%s/%d]: Type is not in known list!: %s, must be one of %v", j.Name, jobIdx, j.Type, SupportedFamilies.Names())
	}

	parent := fmt.Sprintf("Job [%s/%d]", j.Name, jobIdx)
	if len(j.Roles) > 0 {
		for roleIdx, role := range j.Roles {
			if err := role.ValidateRole(roleIdx, parent); err != nil {
				return err
			}
		}
	} else {
		return fmt.Errorf("no IAM roles configured. If the current IAM role is desired, an empty Role should be configured")
	}
	if len(j.Regions) == 0 {
		return fmt.Errorf("Job [%s/%d]: Regions should not be empty", j.Name, jobIdx)
	}

	if j.MaxWorkers < 0 {
		return fmt.Errorf("Job [%s/%d]: maxWorkers should be a positive integer", j.Name, jobIdx)
	}
	if j.ChunkSize < 0 || j.ChunkSize > family.MaxBatchSize {
		return fmt.Errorf("Job [%s/%d]: chunkSize should be between 1 and %d for %s", j.Name, jobIdx, family.MaxBatchSize, family.Name)
	}

	validPolicies := []string{"", string(model.EmptyParentsOmit), string(model.EmptyParentsInclude)}
	if !slices.Contains(validPolicies, j.EmptyParents) {
		return fmt.Errorf("Job [%s/%d]: emptyParents should be one of %q or %q, got %q", j.Name, jobIdx, model.EmptyParentsOmit, model.EmptyParentsInclude, j.EmptyParents)
	}

	for _, st := range j.SearchTags {
		if _, err := regexp.Compile(st.Value); err != nil {
			return fmt.Errorf("Job [%s/%d]: search tag value for %s has invalid regex value %s: %w", j.Name, jobIdx, st.Key, st.Value, err)
		}
	}

	return nil
}

func (c *ScrapeConf) toModelConfig() model.JobsConfig {
	jobsCfg := model.JobsConfig{}
	jobsCfg.StsRegion = c.StsRegion

	for _, resourceJob := range c.Jobs {
		family := SupportedFamilies.GetFamily(resourceJob.Type)

		job := model.ResourceJob{}
		job.Name = resourceJob.Name
		job.Type = resourceJob.Type
		job.Source = resourceJob.Source
		job.Regions = resourceJob.Regions
		job.Roles = toModelRoles(resourceJob.Roles)
		job.SearchTags = toModelSearchTags(resourceJob.SearchTags)
		job.CustomTags = toModelTags(resourceJob.CustomTags)

		job.MaxWorkers = resourceJob.MaxWorkers
		if job.MaxWorkers == 0 {
			job.MaxWorkers = model.DefaultMaxWorkers
		}
		job.ChunkSize = resourceJob.ChunkSize
		if job.ChunkSize == 0 {
			job.ChunkSize = family.MaxBatchSize
		}
		job.EmptyParents = model.EmptyParentsPolicy(resourceJob.EmptyParents)
		if job.EmptyParents == "" {
			job.EmptyParents = model.EmptyParentsOmit
		}

		jobsCfg.Jobs = append(jobsCfg.Jobs, job)
	}

	return jobsCfg
}

func toModelTags(tags []Tag) []model.Tag {
	ret := make([]model.Tag, 0, len(tags))
	for _, t := range tags {
		ret = append(ret, model.Tag{
			Key:   t.Key,
			Value: t.Value,
		})
	}
	return ret
}

func toModelSearchTags(tags []Tag) []model.SearchTag {
	ret := make([]model.SearchTag, 0, len(tags))
	for _, t := range tags {
		// This should never panic as long as regex validation continues to happen before model mapping
		r := regexp.MustCompile(t.Value)
		ret = append(ret, model.SearchTag{
			Key:   t.Key,
			Value: r,
		})
	}
	return ret
}

func toModelRoles(roles []Role) []model.Role {
	ret := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		ret = append(ret, model.Role{
			RoleArn:    r.RoleArn,
			ExternalID: r.ExternalID,
		})
	}
	return ret
}

func logConfigErrors(cfg []byte, logger logging.Logger) {
	var sc ScrapeConf
	var errMsgs []string
	if err := yaml.UnmarshalStrict(cfg, &sc); err != nil {
		terr := &yaml.TypeError{}
		if errors.As(err, &terr) {
			errMsgs = append(errMsgs, terr.Errors...)
		} else {
			errMsgs = append(errMsgs, err.Error())
		}
	}

	if sc.APIVersion == "" {
		errMsgs = append(errMsgs, "missing apiVersion")
	}

	if len(errMsgs) > 0 {
		for _, msg := range errMsgs {
			logger.Warn("config file syntax error", "err", msg)
		}
		logger.Warn(`Config file error(s) detected: yare might not work as expected. Future versions might fail to run with an invalid config file.`)
	}
}

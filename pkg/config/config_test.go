package config

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

func TestConfLoad(t *testing.T) {
	testCases := []struct {
		configFile string
	}{
		{configFile: "config_test.yml"},
		{configFile: "empty_rolearn.ok.yml"},
		{configFile: "sts_region.ok.yml"},
		{configFile: "multiple_roles.ok.yml"},
	}
	for _, tc := range testCases {
		config := ScrapeConf{}
		configFile := fmt.Sprintf("testdata/%s", tc.configFile)
		if _, err := config.Load(configFile, logging.NewNopLogger()); err != nil {
			t.Error(err)
			t.FailNow()
		}
	}
}

func TestBadConfigs(t *testing.T) {
	testCases := []struct {
		configFile string
		errorMsg   string
	}{
		{
			configFile: "externalid_without_rolearn.bad.yml",
			errorMsg:   "RoleArn should not be empty",
		},
		{
			configFile: "externalid_with_empty_rolearn.bad.yml",
			errorMsg:   "RoleArn should not be empty",
		},
		{
			configFile: "unknown_version.bad.yml",
			errorMsg:   "unknown apiVersion value 'invalidVersion'",
		},
		{
			configFile: "job_without_name.bad.yml",
			errorMsg:   "Name should not be empty",
		},
		{
			configFile: "job_without_region.bad.yml",
			errorMsg:   "Regions should not be empty",
		},
		{
			configFile: "unknown_type.bad.yml",
			errorMsg:   "Type is not in known list!: s3-object",
		},
		{
			configFile: "chunk_size_too_large.bad.yml",
			errorMsg:   "chunkSize should be between 1 and 10 for ecs-service",
		},
		{
			configFile: "negative_max_workers.bad.yml",
			errorMsg:   "maxWorkers should be a positive integer",
		},
		{
			configFile: "unknown_empty_parents.bad.yml",
			errorMsg:   `got "sometimes"`,
		},
		{
			configFile: "invalid_search_tag.bad.yml",
			errorMsg:   "has invalid regex value prod(",
		},
		{
			configFile: "duplicate_job_name.bad.yml",
			errorMsg:   "Name is already used by job [0]",
		},
		{
			configFile: "no_jobs.bad.yml",
			errorMsg:   "At least 1 job must be defined",
		},
	}

	for _, tc := range testCases {
		config := ScrapeConf{}
		configFile := fmt.Sprintf("testdata/%s", tc.configFile)
		if _, err := config.Load(configFile, logging.NewNopLogger()); err != nil {
			if !strings.Contains(err.Error(), tc.errorMsg) {
				t.Errorf("expecter error for config file %q to contain %q but got: %s", tc.configFile, tc.errorMsg, err)
				t.FailNow()
			}
		} else {
			t.Log("expected validation error")
			t.FailNow()
		}
	}
}

func TestConfLoadDefaults(t *testing.T) {
	config := ScrapeConf{}
	jobsCfg, err := config.Load("testdata/config_test.yml", logging.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", jobsCfg.StsRegion)
	require.Len(t, jobsCfg.Jobs, 4)

	services := jobsCfg.Jobs[0]
	assert.Equal(t, "ecs-services", services.Name)
	assert.Equal(t, 5, services.MaxWorkers)
	assert.Equal(t, 10, services.ChunkSize)
	assert.Equal(t, model.EmptyParentsOmit, services.EmptyParents)
	assert.Equal(t, []model.Role{{}}, services.Roles)
	assert.Equal(t, []model.Tag{{Key: "team", Value: "platform"}}, services.CustomTags)
	require.Len(t, services.SearchTags, 1)
	assert.Equal(t, "env", services.SearchTags[0].Key)
	assert.True(t, services.SearchTags[0].Value.MatchString("prod"))
	assert.False(t, services.SearchTags[0].Value.MatchString("dev"))

	tasks := jobsCfg.Jobs[1]
	assert.Equal(t, "resource-tagging", tasks.Source)
	assert.Equal(t, model.DefaultMaxWorkers, tasks.MaxWorkers)
	assert.Equal(t, 100, tasks.ChunkSize)
	assert.Equal(t, model.EmptyParentsInclude, tasks.EmptyParents)

	volumes := jobsCfg.Jobs[2]
	assert.Equal(t, "describe-child", volumes.Source)
	assert.Equal(t, 20, volumes.ChunkSize)

	clusters := jobsCfg.Jobs[3]
	assert.Equal(t, "ecs-cluster", clusters.Type)
	assert.Equal(t, 100, clusters.ChunkSize)
}

func TestValidateConfigFailuresWhenUsingAsLibrary(t *testing.T) {
	type testcase struct {
		config   ScrapeConf
		errorMsg string
	}
	testCases := map[string]testcase{
		"empty role should be configured when environment role is desired": {
			config: ScrapeConf{
				APIVersion: "v1alpha1",
				StsRegion:  "us-east-2",
				Jobs: []*Job{{
					Name:    "services",
					Regions: []string{"us-east-2"},
					Type:    "ecs-service",
				}},
			},
			errorMsg: "no IAM roles configured. If the current IAM role is desired, an empty Role should be configured",
		},
		"type is required": {
			config: ScrapeConf{
				APIVersion: "v1alpha1",
				Jobs: []*Job{{
					Name:    "services",
					Regions: []string{"us-east-2"},
					Roles:   []Role{{}},
				}},
			},
			errorMsg: "Job [services/0]: Type should not be empty",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.config.Validate()
			require.Error(t, err, "Expected config validation to fail")
			require.Equal(t, tc.errorMsg, err.Error())
		})
	}
}

func TestLogConfigErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.FormatLogfmt, false)

	logConfigErrors([]byte("jobs:\n  - name: services\n    unknownField: true\n"), logger)

	out := buf.String()
	assert.Contains(t, out, "config file syntax error")
	assert.Contains(t, out, "unknownField")
	assert.Contains(t, out, "missing apiVersion")
}

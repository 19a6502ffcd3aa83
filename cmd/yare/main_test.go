package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

func TestYAREApp_FlagsParsedCorrectly(t *testing.T) {
	app := NewYAREApp()

	app.Action = func(_ *cli.Context) error {
		assert.Equal(t, ":5000", addr)
		assert.Equal(t, "custom.yml", configFile)
		assert.Equal(t, 60, scrapingInterval)
		assert.True(t, useAWSSDKV1)
		assert.True(t, labelsSnakeCase)
		return nil
	}

	require.NoError(t, app.Run([]string{"yare", "-config.file=custom.yml", "-scraping-interval=60", "-aws-sdk-v1", "-labels-snake-case"}), "error running test command")
}

func TestYAREApp_InvalidLogFormat(t *testing.T) {
	app := NewYAREApp()
	app.Action = func(_ *cli.Context) error {
		return nil
	}

	assert.Error(t, app.Run([]string{"yare", "-log.format=text"}))
}

func TestWriteResults(t *testing.T) {
	results := []model.ChildResourceResult{
		{
			Context: &model.ScrapeContext{Region: "us-east-1", AccountID: "123456789012"},
			JobName: "services",
			Type:    "ecs-service",
			Data: []*model.ChildRecord{
				{
					ID:     "arn:aws:ecs:us-east-1:123456789012:service/prod/api",
					Name:   "api",
					Parent: "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
					Status: "ACTIVE",
					Tags:   []model.Tag{{Key: "env", Value: "prod"}},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, outputYAML, results))
	for _, line := range []string{
		"- job: services",
		"  type: ecs-service",
		"  region: us-east-1",
		"    name: api",
		"    status: ACTIVE",
		"    - key: env",
		"      value: prod",
	} {
		assert.Contains(t, buf.String(), line+"\n")
	}
	assert.NotContains(t, buf.String(), "accountAlias")

	buf.Reset()
	require.NoError(t, writeResults(&buf, outputJSON, results))
	assert.JSONEq(t, `[{
		"job": "services",
		"type": "ecs-service",
		"region": "us-east-1",
		"accountId": "123456789012",
		"resources": [{
			"id": "arn:aws:ecs:us-east-1:123456789012:service/prod/api",
			"name": "api",
			"parent": "arn:aws:ecs:us-east-1:123456789012:cluster/prod",
			"status": "ACTIVE",
			"tags": [{"key": "env", "value": "prod"}]
		}]
	}]`, buf.String())

	assert.Error(t, writeResults(&buf, "xml", results))
}

package v2

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/storagegateway"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	aws_logging "github.com/aws/smithy-go/logging"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account"
	account_v2 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account/v2"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	children_v2 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children/v2"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	tagging_v2 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging/v2"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type awsRegion = string

type CachingFactory struct {
	logger              logging.Logger
	stsOptions          func(*sts.Options)
	clients             map[model.Role]map[awsRegion]*cachedClients
	mu                  sync.Mutex
	refreshed           bool
	cleared             bool
	fipsEnabled         bool
	endpointURLOverride string
}

type cachedClients struct {
	awsConfig *aws.Config
	// services holds the AWS services used by the jobs of this role and
	// region, only their API clients are created on refresh
	services       map[string]struct{}
	ecs            *ecs.Client
	storageGateway *storagegateway.Client
	tagging        tagging.Client
	account        account.Client
}

// Ensure the struct properly implements the interface
var _ clients.CachingFactory = &CachingFactory{}

// NewFactory creates a new client factory to use when fetching data from AWS with sdk v2
func NewFactory(logger logging.Logger, jobsCfg model.JobsConfig, fips bool) (*CachingFactory, error) {
	var options []func(*aws_config.LoadOptions) error
	options = append(options, aws_config.WithLogger(aws_logging.LoggerFunc(func(classification aws_logging.Classification, format string, v ...interface{}) {
		switch classification {
		case aws_logging.Debug:
			if logger.IsDebugEnabled() {
				logger.Debug(fmt.Sprintf(format, v...))
			}
		case aws_logging.Warn:
			logger.Warn(fmt.Sprintf(format, v...))
		default: // AWS logging only supports debug or warn, log everything else as error
			logger.Error(fmt.Errorf("unexected aws error classification: %s", classification), fmt.Sprintf(format, v...))
		}
	})))

	options = append(options, aws_config.WithLogConfigurationWarnings(true))

	endpointURLOverride := os.Getenv("AWS_ENDPOINT_URL")

	options = append(options, aws_config.WithRetryMaxAttempts(5))

	if fips {
		options = append(options, aws_config.WithUseFIPSEndpoint(aws.FIPSEndpointStateEnabled))
	}

	c, err := aws_config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load default aws config: %w", err)
	}

	stsOptions := createStsOptions(jobsCfg.StsRegion, logger.IsDebugEnabled(), endpointURLOverride, fips)
	cache := map[model.Role]map[awsRegion]*cachedClients{}
	for _, job := range jobsCfg.Jobs {
		service := ""
		if family := config.SupportedFamilies.GetFamily(job.Type); family != nil {
			service = family.Service
		}
		for _, role := range job.Roles {
			if _, ok := cache[role]; !ok {
				cache[role] = map[awsRegion]*cachedClients{}
			}
			for _, region := range job.Regions {
				if _, exists := cache[role][region]; !exists {
					cache[role][region] = &cachedClients{
						awsConfig: awsConfigForRegion(role, &c, region, stsOptions),
						services:  map[string]struct{}{},
					}
				}
				if service != "" {
					cache[role][region].services[service] = struct{}{}
				}
			}
		}
	}

	return &CachingFactory{
		logger:              logger,
		clients:             cache,
		fipsEnabled:         fips,
		stsOptions:          stsOptions,
		endpointURLOverride: endpointURLOverride,
	}, nil
}

func (c *CachingFactory) GetChildClient(region string, role model.Role, family config.FamilyConfig, concurrencyLimit int) children.Client {
	if !c.refreshed {
		// if we have not refreshed then we need to lock in case we are accessing concurrently
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	cache := c.clients[role][region]
	if cache.ecs == nil && family.Service == "ecs" {
		cache.ecs = c.createECSClient(cache.awsConfig)
	}
	if cache.storageGateway == nil && family.Service == "storagegateway" {
		cache.storageGateway = c.createStorageGatewayClient(cache.awsConfig)
	}
	return children.NewLimitedConcurrencyClient(children_v2.NewClient(c.logger, family, region, cache.ecs, cache.storageGateway), concurrencyLimit)
}

func (c *CachingFactory) GetTaggingClient(region string, role model.Role, concurrencyLimit int) tagging.Client {
	if !c.refreshed {
		// if we have not refreshed then we need to lock in case we are accessing concurrently
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	if client := c.clients[role][region].tagging; client != nil {
		return tagging.NewLimitedConcurrencyClient(client, concurrencyLimit)
	}
	c.clients[role][region].tagging = tagging_v2.NewClient(c.logger, c.createTaggingClient(c.clients[role][region].awsConfig))
	return tagging.NewLimitedConcurrencyClient(c.clients[role][region].tagging, concurrencyLimit)
}

func (c *CachingFactory) GetAccountClient(region string, role model.Role) account.Client {
	if !c.refreshed {
		// if we have not refreshed then we need to lock in case we are accessing concurrently
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	if client := c.clients[role][region].account; client != nil {
		return client
	}
	cache := c.clients[role][region]
	cache.account = account_v2.NewClient(c.logger, c.createStsClient(cache.awsConfig), c.createIAMClient(cache.awsConfig))
	return cache.account
}

func (c *CachingFactory) Refresh() {
	if c.refreshed {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Avoid double refresh in the event Refresh() is called concurrently
	if c.refreshed {
		return
	}

	for _, regionClients := range c.clients {
		for _, cache := range regionClients {
			if _, ok := cache.services["ecs"]; ok {
				cache.ecs = c.createECSClient(cache.awsConfig)
			}
			if _, ok := cache.services["storagegateway"]; ok {
				cache.storageGateway = c.createStorageGatewayClient(cache.awsConfig)
			}
			cache.tagging = tagging_v2.NewClient(c.logger, c.createTaggingClient(cache.awsConfig))
			cache.account = account_v2.NewClient(c.logger, c.createStsClient(cache.awsConfig), c.createIAMClient(cache.awsConfig))
		}
	}

	c.refreshed = true
	c.cleared = false
}

func (c *CachingFactory) Clear() {
	if c.cleared {
		return
	}
	// Prevent concurrent reads/write if clear is called during execution
	c.mu.Lock()
	defer c.mu.Unlock()
	// Avoid double clear in the event Refresh() is called concurrently
	if c.cleared {
		return
	}

	for _, regions := range c.clients {
		for _, cache := range regions {
			cache.ecs = nil
			cache.storageGateway = nil
			cache.account = nil
			cache.tagging = nil
		}
	}

	c.refreshed = false
	c.cleared = true
}

func (c *CachingFactory) createECSClient(regionConfig *aws.Config) *ecs.Client {
	return ecs.NewFromConfig(*regionConfig, func(options *ecs.Options) {
		if c.logger.IsDebugEnabled() {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if c.endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(c.endpointURLOverride)
		}

		// Setting an explicit retryer will override the default settings on the config
		options.Retryer = retry.NewStandard(func(options *retry.StandardOptions) {
			options.MaxAttempts = 5
			options.MaxBackoff = 3 * time.Second
		})

		if c.fipsEnabled {
			options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
		}
	})
}

func (c *CachingFactory) createStorageGatewayClient(regionConfig *aws.Config) *storagegateway.Client {
	return storagegateway.NewFromConfig(*regionConfig, func(options *storagegateway.Options) {
		if c.logger.IsDebugEnabled() {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if c.endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(c.endpointURLOverride)
		}
		if c.fipsEnabled {
			options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
		}
	})
}

func (c *CachingFactory) createTaggingClient(regionConfig *aws.Config) *resourcegroupstaggingapi.Client {
	return resourcegroupstaggingapi.NewFromConfig(*regionConfig, func(options *resourcegroupstaggingapi.Options) {
		if c.logger.IsDebugEnabled() {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if c.endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(c.endpointURLOverride)
		}
		// The FIPS setting is ignored because FIPS is not available for resource groups tagging apis
		// If enabled the SDK will try to use non-existent FIPS URLs, https://github.com/aws/aws-sdk-go-v2/issues/2138#issuecomment-1570791988
		// AWS FIPS Reference: https://aws.amazon.com/compliance/fips/
		options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateDisabled
	})
}

func (c *CachingFactory) createIAMClient(regionConfig *aws.Config) *iam.Client {
	return iam.NewFromConfig(*regionConfig, func(options *iam.Options) {
		if c.logger.IsDebugEnabled() {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if c.endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(c.endpointURLOverride)
		}
	})
}

func (c *CachingFactory) createStsClient(awsConfig *aws.Config) *sts.Client {
	return sts.NewFromConfig(*awsConfig, c.stsOptions)
}

func createStsOptions(stsRegion string, isDebugLoggingEnabled bool, endpointURLOverride string, fipsEnabled bool) func(*sts.Options) {
	return func(options *sts.Options) {
		if stsRegion != "" {
			options.Region = stsRegion
		}
		if isDebugLoggingEnabled {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(endpointURLOverride)
		}
		if fipsEnabled {
			options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
		}
	}
}

var defaultRole = model.Role{}

func awsConfigForRegion(r model.Role, c *aws.Config, region awsRegion, stsOptions func(*sts.Options)) *aws.Config {
	regionalConfig := c.Copy()
	regionalConfig.Region = region

	if r == defaultRole {
		return &regionalConfig
	}

	// based on https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/credentials/stscreds#hdr-Assume_Role
	// found via https://github.com/aws/aws-sdk-go-v2/issues/1382
	regionalSts := sts.NewFromConfig(*c, stsOptions)
	credentials := stscreds.NewAssumeRoleProvider(regionalSts, r.RoleArn, func(options *stscreds.AssumeRoleOptions) {
		if r.ExternalID != "" {
			options.ExternalID = aws.String(r.ExternalID)
		}
	})
	regionalConfig.Credentials = aws.NewCredentialsCache(credentials)

	return &regionalConfig
}

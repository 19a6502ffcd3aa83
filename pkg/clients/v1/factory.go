package v1

import (
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/storagegateway"
	"github.com/aws/aws-sdk-go/service/storagegateway/storagegatewayiface"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account"
	account_v1 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account/v1"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	children_v1 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children/v1"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	tagging_v1 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging/v1"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type CachingFactory struct {
	stsRegion        string
	session          *session.Session
	endpointResolver endpoints.ResolverFunc
	stscache         map[model.Role]stsiface.STSAPI
	clients          map[model.Role]map[string]*cachedClients
	cleared          bool
	refreshed        bool
	mu               sync.Mutex
	fips             bool
	logger           logging.Logger
}

type cachedClients struct {
	// services holds the AWS services used by the jobs of this role and
	// region, only their API clients are created on refresh
	services       map[string]struct{}
	ecs            ecsiface.ECSAPI
	storageGateway storagegatewayiface.StorageGatewayAPI
	tagging        tagging.Client
	account        account.Client
}

// Ensure the struct properly implements the interface
var _ clients.CachingFactory = &CachingFactory{}

// NewFactory creates a new client factory to use when fetching data from AWS with sdk v1
func NewFactory(logger logging.Logger, jobsCfg model.JobsConfig, fips bool) *CachingFactory {
	stscache := map[model.Role]stsiface.STSAPI{}
	cache := map[model.Role]map[string]*cachedClients{}

	for _, job := range jobsCfg.Jobs {
		service := ""
		if family := config.SupportedFamilies.GetFamily(job.Type); family != nil {
			service = family.Service
		}
		for _, role := range job.Roles {
			if _, ok := stscache[role]; !ok {
				stscache[role] = nil
			}
			if _, ok := cache[role]; !ok {
				cache[role] = map[string]*cachedClients{}
			}
			for _, region := range job.Regions {
				// Only write a new region in if the region does not exist
				if _, ok := cache[role][region]; !ok {
					cache[role][region] = &cachedClients{services: map[string]struct{}{}}
				}
				if service != "" {
					cache[role][region].services[service] = struct{}{}
				}
			}
		}
	}

	endpointResolver := endpoints.DefaultResolver().EndpointFor

	endpointURLOverride := os.Getenv("AWS_ENDPOINT_URL")
	if endpointURLOverride != "" {
		// allow override of all endpoints for local testing
		endpointResolver = func(_ string, _ string, _ ...func(*endpoints.Options)) (endpoints.ResolvedEndpoint, error) {
			return endpoints.ResolvedEndpoint{
				URL: endpointURLOverride,
			}, nil
		}
	}

	return &CachingFactory{
		stsRegion:        jobsCfg.StsRegion,
		session:          nil,
		endpointResolver: endpointResolver,
		stscache:         stscache,
		clients:          cache,
		fips:             fips,
		cleared:          false,
		refreshed:        false,
		logger:           logger,
	}
}

// Refresh and Clear help to avoid using lock primitives by asserting that
// there are no ongoing writes to the map.
func (c *CachingFactory) Clear() {
	if c.cleared {
		return
	}

	for role := range c.stscache {
		c.stscache[role] = nil
	}

	for role, regions := range c.clients {
		for region := range regions {
			cachedClient := c.clients[role][region]
			cachedClient.account = nil
			cachedClient.ecs = nil
			cachedClient.storageGateway = nil
			cachedClient.tagging = nil
		}
	}
	c.cleared = true
	c.refreshed = false
}

func (c *CachingFactory) Refresh() {
	if c.refreshed {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double check Refresh wasn't called concurrently
	if c.refreshed {
		return
	}

	// sessions really only need to be constructed once at runtime
	if c.session == nil {
		c.session = createAWSSession(c.endpointResolver, c.logger.IsDebugEnabled())
	}

	for role := range c.stscache {
		c.stscache[role] = createStsSession(c.session, role, c.stsRegion, c.fips, c.logger.IsDebugEnabled())
	}

	for role, regions := range c.clients {
		for region := range regions {
			cachedClient := c.clients[role][region]
			// only the services used by the jobs get a client, avoiding
			// permissions errors for services nothing enumerates
			if _, ok := cachedClient.services["ecs"]; ok {
				cachedClient.ecs = createECSSession(c.session, &region, role, c.fips, c.logger.IsDebugEnabled())
			}
			if _, ok := cachedClient.services["storagegateway"]; ok {
				cachedClient.storageGateway = createStorageGatewaySession(c.session, &region, role, c.fips, c.logger.IsDebugEnabled())
			}
			cachedClient.tagging = createTaggingClient(c.logger, c.session, &region, role)
			cachedClient.account = createAccountClient(c.logger, c.stscache[role], createIAMSession(c.session, role, c.logger.IsDebugEnabled()))
		}
	}

	c.cleared = false
	c.refreshed = true
}

func createTaggingClient(logger logging.Logger, session *session.Session, region *string, role model.Role) tagging.Client {
	// The Resource Groups Tagging API does not support FIPS
	// AWS FIPS Reference: https://aws.amazon.com/compliance/fips/
	return tagging_v1.NewClient(
		logger,
		createTagSession(session, region, role, logger.IsDebugEnabled()),
	)
}

func createAccountClient(logger logging.Logger, sts stsiface.STSAPI, iam iamiface.IAMAPI) account.Client {
	return account_v1.NewClient(logger, sts, iam)
}

func (c *CachingFactory) GetChildClient(region string, role model.Role, family config.FamilyConfig, concurrencyLimit int) children.Client {
	if !c.refreshed {
		// if we have not refreshed then we need to lock in case we are accessing concurrently
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	cachedClient := c.clients[role][region]
	if cachedClient.ecs == nil && family.Service == "ecs" {
		cachedClient.ecs = createECSSession(c.session, &region, role, c.fips, c.logger.IsDebugEnabled())
	}
	if cachedClient.storageGateway == nil && family.Service == "storagegateway" {
		cachedClient.storageGateway = createStorageGatewaySession(c.session, &region, role, c.fips, c.logger.IsDebugEnabled())
	}
	return children.NewLimitedConcurrencyClient(
		children_v1.NewClient(c.logger, family, region, cachedClient.ecs, cachedClient.storageGateway),
		concurrencyLimit,
	)
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
	c.clients[role][region].tagging = createTaggingClient(c.logger, c.session, &region, role)
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
	c.clients[role][region].account = createAccountClient(c.logger, c.stscache[role], createIAMSession(c.session, role, c.logger.IsDebugEnabled()))
	return c.clients[role][region].account
}

func setExternalID(ID string) func(p *stscreds.AssumeRoleProvider) {
	return func(p *stscreds.AssumeRoleProvider) {
		if ID != "" {
			p.ExternalID = aws.String(ID)
		}
	}
}

func setSTSCreds(sess *session.Session, config *aws.Config, role model.Role) *aws.Config {
	if role.RoleArn != "" {
		config.Credentials = stscreds.NewCredentials(
			sess, role.RoleArn, setExternalID(role.ExternalID))
	}
	return config
}

func getAwsRetryer() aws.RequestRetryer {
	return client.DefaultRetryer{
		NumMaxRetries: 5,
		// MaxThrottleDelay and MinThrottleDelay used for throttle errors
		MaxThrottleDelay: 10 * time.Second,
		MinThrottleDelay: 1 * time.Second,
		// For other errors
		MaxRetryDelay: 3 * time.Second,
		MinRetryDelay: 1 * time.Second,
	}
}

func createAWSSession(resolver endpoints.ResolverFunc, isDebugEnabled bool) *session.Session {
	config := aws.Config{
		CredentialsChainVerboseErrors: aws.Bool(true),
		EndpointResolver:              resolver,
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            config,
	}))
	return sess
}

func createStsSession(sess *session.Session, role model.Role, region string, fips bool, isDebugEnabled bool) *sts.STS {
	maxStsRetries := 5
	config := &aws.Config{MaxRetries: &maxStsRetries}

	if region != "" {
		config = config.WithRegion(region).WithSTSRegionalEndpoint(endpoints.RegionalSTSEndpoint)
	}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return sts.New(sess, setSTSCreds(sess, config, role))
}

// IAM is a global service, the session keeps its default region.
func createIAMSession(sess *session.Session, role model.Role, isDebugEnabled bool) iamiface.IAMAPI {
	maxIAMRetries := 5
	config := &aws.Config{MaxRetries: &maxIAMRetries}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return iam.New(sess, setSTSCreds(sess, config, role))
}

func createECSSession(sess *session.Session, region *string, role model.Role, fips bool, isDebugEnabled bool) ecsiface.ECSAPI {
	config := &aws.Config{Region: region, Retryer: getAwsRetryer()}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return ecs.New(sess, setSTSCreds(sess, config, role))
}

func createTagSession(sess *session.Session, region *string, role model.Role, isDebugEnabled bool) *resourcegroupstaggingapi.ResourceGroupsTaggingAPI {
	maxResourceGroupTaggingRetries := 5
	config := &aws.Config{
		Region:                        region,
		MaxRetries:                    &maxResourceGroupTaggingRetries,
		CredentialsChainVerboseErrors: aws.Bool(true),
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return resourcegroupstaggingapi.New(sess, setSTSCreds(sess, config, role))
}

func createStorageGatewaySession(sess *session.Session, region *string, role model.Role, fips bool, isDebugEnabled bool) storagegatewayiface.StorageGatewayAPI {
	maxStorageGatewayAPIRetries := 5
	config := &aws.Config{Region: region, MaxRetries: &maxStorageGatewayAPIRetries}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return storagegateway.New(sess, setSTSCreds(sess, config, role))
}

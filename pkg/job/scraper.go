// Package job runs every configured job over its roles and regions.
package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/resources"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/sources"
)

// DefaultClientConcurrency caps the in-flight calls of each client when no
// limit is given.
const DefaultClientConcurrency = 5

type Scraper struct {
	jobsCfg           model.JobsConfig
	logger            logging.Logger
	factory           clients.Factory
	registry          *sources.Registry
	clientConcurrency int
}

func NewScraper(logger logging.Logger,
	jobsCfg model.JobsConfig,
	factory clients.Factory,
	registry *sources.Registry,
	clientConcurrency int,
) *Scraper {
	if registry == nil {
		registry = sources.DefaultRegistry()
	}
	if clientConcurrency <= 0 {
		clientConcurrency = DefaultClientConcurrency
	}
	return &Scraper{
		factory:           factory,
		logger:            logger,
		jobsCfg:           jobsCfg,
		registry:          registry,
		clientConcurrency: clientConcurrency,
	}
}

type account struct {
	id    string
	alias string
}

// Scrape runs every job, role and region combination concurrently. Results and
// errors are returned in the order of the combinations in the config.
func (s Scraper) Scrape(ctx context.Context) ([]model.ChildResourceResult, []Error) {
	// Setup so we only do one account lookup per region + role combo when running jobs
	roleRegionToAccount := map[model.Role]map[string]func() (account, error){}
	jobConfigVisitor(s.jobsCfg, func(_ model.ResourceJob, role model.Role, region string) {
		if _, exists := roleRegionToAccount[role]; !exists {
			roleRegionToAccount[role] = map[string]func() (account, error){}
		}
		if _, exists := roleRegionToAccount[role][region]; exists {
			return
		}
		roleRegionToAccount[role][region] = sync.OnceValues[account, error](func() (account, error) {
			client := s.factory.GetAccountClient(region, role)
			accountID, err := client.GetAccount(ctx)
			if err != nil {
				return account{}, fmt.Errorf("failed to get Account: %w", err)
			}
			alias, err := client.GetAccountAlias(ctx)
			if err != nil {
				s.logger.Warn("Failed to get account alias, continuing without it", "account", accountID, "region", region, "role_arn", role.RoleArn, "err", err)
			}
			return account{id: accountID, alias: alias}, nil
		})
	})

	type outcome struct {
		result *model.ChildResourceResult
		err    *Error
	}
	var outcomes []*outcome

	var wg sync.WaitGroup
	s.logger.Debug("Starting job runs")

	jobConfigVisitor(s.jobsCfg, func(job model.ResourceJob, role model.Role, region string) {
		out := &outcome{}
		outcomes = append(outcomes, out)

		wg.Add(1)
		go func() {
			defer wg.Done()

			jobContext := JobContext{
				JobName: job.Name,
				Type:    job.Type,
				Region:  region,
				RoleARN: role.RoleArn,
			}
			jobLogger := s.logger.With("job", jobContext.JobName, "type", jobContext.Type, "region", jobContext.Region, "role_arn", jobContext.RoleARN)

			acc, err := roleRegionToAccount[role][region]()
			if err != nil {
				out.err = NewError(jobContext, "Account for job was not found", err)
				return
			}
			jobContext.AccountID = acc.id
			jobContext.AccountAlias = acc.alias
			jobLogger = jobLogger.With("account", jobContext.AccountID)

			records, err := s.runJob(ctx, jobLogger, job, role, region)
			if err != nil {
				out.err = NewError(jobContext, "Failed to enumerate resources for job", err)
				return
			}
			jobLogger.Debug("Resource enumeration finished", "number_of_discovered_resources", len(records))
			if len(records) == 0 {
				jobLogger.Debug("No resources found")
				return
			}

			out.result = &model.ChildResourceResult{
				Context: jobContext.ToScrapeContext(job.CustomTags),
				JobName: job.Name,
				Type:    job.Type,
				Data:    records,
			}
		}()
	})
	wg.Wait()

	results := make([]model.ChildResourceResult, 0, len(outcomes))
	jobErrors := make([]Error, 0)
	for _, out := range outcomes {
		if out.result != nil {
			results = append(results, *out.result)
		}
		if out.err != nil {
			jobErrors = append(jobErrors, *out.err)
		}
	}

	s.logger.Debug("Finished job runs", "resource_results", len(results), "errors", len(jobErrors))
	return results, jobErrors
}

func (s Scraper) runJob(ctx context.Context, logger logging.Logger, job model.ResourceJob, role model.Role, region string) ([]*model.ChildRecord, error) {
	family := config.SupportedFamilies.GetFamily(job.Type)
	if family == nil {
		return nil, fmt.Errorf("unknown resource family %q", job.Type)
	}

	source, err := s.registry.Canonical(job.Source)
	if err != nil {
		return nil, err
	}

	deps := sources.Deps{
		Family:   *family,
		Region:   region,
		Children: s.factory.GetChildClient(region, role, *family, s.clientConcurrency),
	}
	if source == sources.ResourceTagging {
		deps.Tagging = s.factory.GetTaggingClient(region, role, s.clientConcurrency)
	}

	manager, err := resources.NewManager(logger, s.registry, job, deps)
	if err != nil {
		return nil, err
	}

	logger.Debug("Starting resource enumeration", "source", manager.Source())
	return manager.ListAndAugment(ctx)
}

// Walk through each job, role and region
func jobConfigVisitor(jobsCfg model.JobsConfig, action func(job model.ResourceJob, role model.Role, region string)) {
	for _, job := range jobsCfg.Jobs {
		for _, role := range job.Roles {
			for _, region := range job.Regions {
				action(job, role, region)
			}
		}
	}
}

// JobContext exists to track data we want for logging, errors, or other output context that's learned as the job runs
// This makes it easier to track the data additively and morph it to the final shape necessary be it a model.ScrapeContext
// or an Error. It's an exported type for tests but is not part of the public interface
type JobContext struct { //nolint:revive
	AccountID    string
	AccountAlias string
	JobName      string
	Type         string
	Region       string
	RoleARN      string
}

func (jc JobContext) ToScrapeContext(customTags []model.Tag) *model.ScrapeContext {
	return &model.ScrapeContext{
		AccountID:    jc.AccountID,
		AccountAlias: jc.AccountAlias,
		Region:       jc.Region,
		CustomTags:   customTags,
	}
}

type Error struct {
	JobContext
	Message string
	Err     error
}

func NewError(context JobContext, message string, err error) *Error {
	return &Error{
		JobContext: context,
		Message:    message,
		Err:        err,
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

func (e Error) ToLoggerKeyVals() []interface{} {
	return []interface{}{
		"account_id", e.AccountID,
		"job", e.JobName,
		"type", e.Type,
		"region", e.Region,
		"role_arn", e.RoleARN,
	}
}

package exporter

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/job"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/sources"
)

// Metrics is a slice of prometheus metrics specific to the enumeration process such as API call counters
var Metrics = promutil.Metrics

const (
	DefaultLabelsSnakeCase   = false
	DefaultClientConcurrency = job.DefaultClientConcurrency
)

type options struct {
	labelsSnakeCase   bool
	clientConcurrency int
	registry          *sources.Registry
}

type OptionsFunc func(*options) error

func LabelsSnakeCase(labelsSnakeCase bool) OptionsFunc {
	return func(o *options) error {
		o.labelsSnakeCase = labelsSnakeCase
		return nil
	}
}

// ClientConcurrency caps the in-flight calls of every AWS client.
func ClientConcurrency(maxConcurrency int) OptionsFunc {
	return func(o *options) error {
		if maxConcurrency <= 0 {
			return fmt.Errorf("ClientConcurrency must be a positive value")
		}

		o.clientConcurrency = maxConcurrency
		return nil
	}
}

// SourceRegistry replaces the registry job sources are resolved with.
func SourceRegistry(registry *sources.Registry) OptionsFunc {
	return func(o *options) error {
		if registry == nil {
			return fmt.Errorf("SourceRegistry must not be nil")
		}

		o.registry = registry
		return nil
	}
}

func defaultOptions() options {
	return options{
		labelsSnakeCase:   DefaultLabelsSnakeCase,
		clientConcurrency: DefaultClientConcurrency,
		registry:          sources.DefaultRegistry(),
	}
}

// Enumerate runs every job once and returns the discovered children. A
// failing job never stops the others, its error is logged and returned.
func Enumerate(
	ctx context.Context,
	logger logging.Logger,
	jobsCfg model.JobsConfig,
	factory clients.Factory,
	optFuncs ...OptionsFunc,
) ([]model.ChildResourceResult, []job.Error, error) {
	options := defaultOptions()
	for _, f := range optFuncs {
		if err := f(&options); err != nil {
			return nil, nil, err
		}
	}

	results, jobErrors := job.NewScraper(logger, jobsCfg, factory, options.registry, options.clientConcurrency).Scrape(ctx)
	for _, jobErr := range jobErrors {
		logger.Error(jobErr.Err, jobErr.Message, jobErr.ToLoggerKeyVals()...)
	}
	return results, jobErrors, nil
}

// UpdateMetrics is the entrypoint to enumerate resources from AWS on demand.
//
// Parameters are:
// - `ctx`: a context for the request
// - `logger`: any implementation of the `logging.Logger` interface
// - `jobsCfg`: the jobs of the top-level configuration
// - `registry`: any prometheus compatible registry where the info metrics will be written
// - `factory`: any implementation of the `clients.Factory` interface
// - `optFuncs`: (optional) any number of options funcs
//
// You can pre-register any of the default metrics from `Metrics` with the provided `registry` if you want them
// included in the results.
func UpdateMetrics(
	ctx context.Context,
	logger logging.Logger,
	jobsCfg model.JobsConfig,
	registry *prometheus.Registry,
	factory clients.Factory,
	optFuncs ...OptionsFunc,
) error {
	options := defaultOptions()
	for _, f := range optFuncs {
		if err := f(&options); err != nil {
			return err
		}
	}

	results, _, err := Enumerate(ctx, logger, jobsCfg, factory, optFuncs...)
	if err != nil {
		return err
	}

	metrics := promutil.BuildResourceInfoMetrics(results, options.labelsSnakeCase, logger)
	registry.MustRegister(promutil.NewPrometheusCollector(metrics))
	return nil
}

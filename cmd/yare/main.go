package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v2"

	exporter "github.com/nerdswords/yet-another-resource-enumerator/pkg"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients"
	v1 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/v1"
	v2 "github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/v2"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/sources"
)

const (
	htmlVersion = `<html>
<head><title>Yet Another Resource Enumerator</title></head>
<body>
<h1>Thanks for using YARE :)</h1>
Version: %s
<p><a href="/metrics">Metrics</a></p>
</body>
</html>`
	htmlPprof = `<p><a href="/debug/pprof">Pprof</a><p>`
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

var version = "custom-build"

var sem = semaphore.NewWeighted(1)

var (
	addr              string
	configFile        string
	logFormat         string
	output            string
	fips              bool
	useAWSSDKV1       bool
	debug             bool
	scrapingInterval  int
	clientConcurrency int
	labelsSnakeCase   bool

	logger logging.Logger
)

func main() {
	app := NewYAREApp()
	if err := app.Run(os.Args); err != nil {
		// if we exit very early we'll not have set up the logger yet
		if logger == nil {
			logger = logging.NewLogger(logging.FormatJSON, debug, "version", version)
		}
		logger.Error(err, "Error running yare")
		os.Exit(1)
	}
}

// NewYAREApp creates a new cli.App implementing the YARE entrypoints and CLI arguments.
func NewYAREApp() *cli.App {
	yare := cli.NewApp()
	yare.Name = "Yet Another Resource Enumerator"
	yare.Version = version
	yare.Usage = "YARE lists and describes the child resources of AWS parent resources"
	yare.Description = ""
	yare.Authors = []*cli.Author{
		{Name: "", Email: ""},
	}

	configFileFlag := &cli.StringFlag{
		Name:        "config.file",
		Value:       "config.yml",
		Usage:       "Path to configuration file",
		Destination: &configFile,
	}

	yare.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "listen-address",
			Value:       ":5000",
			Usage:       "The address to listen on",
			Destination: &addr,
			EnvVars:     []string{"listen-address"},
		},
		configFileFlag,
		&cli.StringFlag{
			Name:        "log.format",
			Value:       logging.FormatJSON,
			Usage:       "Output format of log messages. One of: [logfmt, json]. Default: [json].",
			Destination: &logFormat,
			Action: func(_ *cli.Context, s string) error {
				return logging.ValidateFormat(s)
			},
		},
		&cli.BoolFlag{
			Name:        "debug",
			Value:       false,
			Usage:       "Verbose logging",
			Destination: &debug,
		},
		&cli.BoolFlag{
			Name:        "fips",
			Value:       false,
			Usage:       "Use FIPS compliant AWS API endpoints",
			Destination: &fips,
		},
		&cli.BoolFlag{
			Name:        "aws-sdk-v1",
			Value:       false,
			Usage:       "Use the aws sdk v1 clients instead of the aws sdk v2 ones",
			Destination: &useAWSSDKV1,
		},
		&cli.IntFlag{
			Name:        "scraping-interval",
			Value:       300,
			Usage:       "Seconds to wait between two enumerations of the resources",
			Destination: &scrapingInterval,
		},
		&cli.IntFlag{
			Name:        "client-concurrency",
			Value:       exporter.DefaultClientConcurrency,
			Usage:       "Maximum number of concurrent requests per AWS client",
			Destination: &clientConcurrency,
		},
		&cli.BoolFlag{
			Name:        "labels-snake-case",
			Value:       exporter.DefaultLabelsSnakeCase,
			Usage:       "Whether labels should be output in snake case instead of camel case",
			Destination: &labelsSnakeCase,
		},
	}

	yare.Before = func(_ *cli.Context) error {
		logger = logging.NewLogger(logFormat, debug, "version", version)
		return nil
	}

	yare.Commands = []*cli.Command{
		{
			Name:    "serve",
			Aliases: []string{"s"},
			Usage:   "Enumerates the resources on the scraping interval and serves them as info metrics",
			Action:  startScraper,
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "Enumerates the resources once and prints them grouped per job",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "output",
					Aliases:     []string{"o"},
					Value:       outputYAML,
					Usage:       "Output format. One of: [yaml, json]",
					Destination: &output,
					Action: func(_ *cli.Context, s string) error {
						if s != outputYAML && s != outputJSON {
							return fmt.Errorf("unsupported output format %q, must be one of %q or %q", s, outputYAML, outputJSON)
						}
						return nil
					},
				},
			},
			Action: listResources,
		},
		{
			Name:    "verify-config",
			Aliases: []string{"vc"},
			Usage:   "Loads and attempts to parse config file, then exits. Useful for CI/CD validation",
			Flags:   []cli.Flag{configFileFlag},
			Action: func(_ *cli.Context) error {
				if _, err := loadConfig(); err != nil {
					logger.Error(err, "Couldn't read config file", "path", configFile)
					os.Exit(1)
				}
				logger.Info("Config file is valid", "path", configFile)
				os.Exit(0)
				return nil
			},
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "prints current yare version.",
			Action: func(_ *cli.Context) error {
				fmt.Println(version)
				os.Exit(0)
				return nil
			},
		},
	}

	yare.Action = startScraper

	return yare
}

// loadConfig reads the config file and checks every job source resolves.
func loadConfig() (model.JobsConfig, error) {
	cfg := config.ScrapeConf{}
	jobsCfg, err := cfg.Load(configFile, logger)
	if err != nil {
		return model.JobsConfig{}, err
	}
	if err := sources.DefaultRegistry().ValidateJobs(jobsCfg); err != nil {
		return model.JobsConfig{}, err
	}
	return jobsCfg, nil
}

func newFactory(jobsCfg model.JobsConfig) (clients.CachingFactory, error) {
	if useAWSSDKV1 {
		logger.Info("Using aws sdk v1")
		return v1.NewFactory(logger, jobsCfg, fips), nil
	}
	factory, err := v2.NewFactory(logger, jobsCfg, fips)
	if err != nil {
		return nil, fmt.Errorf("failed to construct aws sdk v2 client cache: %w", err)
	}
	return factory, nil
}

func listResources(c *cli.Context) error {
	jobsCfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("couldn't read %s: %w", configFile, err)
	}

	factory, err := newFactory(jobsCfg)
	if err != nil {
		return err
	}
	factory.Refresh()
	defer factory.Clear()

	results, _, err := exporter.Enumerate(c.Context, logger, jobsCfg, factory, exporter.ClientConcurrency(clientConcurrency))
	if err != nil {
		return err
	}
	return writeResults(os.Stdout, output, results)
}

type listedJob struct {
	Job          string         `json:"job" yaml:"job"`
	Type         string         `json:"type" yaml:"type"`
	Region       string         `json:"region" yaml:"region"`
	AccountID    string         `json:"accountId" yaml:"accountId"`
	AccountAlias string         `json:"accountAlias,omitempty" yaml:"accountAlias,omitempty"`
	Resources    []listedRecord `json:"resources" yaml:"resources"`
}

type listedRecord struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Parent     string            `json:"parent" yaml:"parent"`
	Status     string            `json:"status,omitempty" yaml:"status,omitempty"`
	Tags       []model.Tag       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func toListedJobs(results []model.ChildResourceResult) []listedJob {
	jobs := make([]listedJob, 0, len(results))
	for _, result := range results {
		j := listedJob{
			Job:       result.JobName,
			Type:      result.Type,
			Resources: make([]listedRecord, 0, len(result.Data)),
		}
		if result.Context != nil {
			j.Region = result.Context.Region
			j.AccountID = result.Context.AccountID
			j.AccountAlias = result.Context.AccountAlias
		}
		for _, record := range result.Data {
			j.Resources = append(j.Resources, listedRecord{
				ID:         string(record.ID),
				Name:       record.Name,
				Parent:     string(record.Parent),
				Status:     record.Status,
				Tags:       record.Tags,
				Attributes: record.Attributes,
			})
		}
		jobs = append(jobs, j)
	}
	return jobs
}

func writeResults(w io.Writer, format string, results []model.ChildResourceResult) error {
	jobs := toListedJobs(results)
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	case outputYAML, "":
		out, err := yaml.Marshal(jobs)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func startScraper(c *cli.Context) error {
	jobsCfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("couldn't read %s: %w", configFile, err)
	}

	logger.Info("Parsed config file", "path", configFile, "jobs", len(jobsCfg.Jobs))

	cache, err := newFactory(jobsCfg)
	if err != nil {
		return err
	}

	s := NewScraper(clientConcurrency, labelsSnakeCase)

	loop := newReloader(c.Context, func(ctx context.Context, cfg model.JobsConfig, factory clients.CachingFactory) {
		s.decoupled(ctx, logger, cfg, factory)
	})
	loop.Reload(jobsCfg, cache)

	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", s.makeHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		pprofLink := ""
		if debug {
			pprofLink = htmlPprof
		}

		_, _ = w.Write([]byte(fmt.Sprintf(htmlVersion, version) + pprofLink))
	})

	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/-/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		logger.Info("Parsing config")
		newJobsCfg, err := loadConfig()
		if err != nil {
			logger.Error(err, "Couldn't read config file", "path", configFile)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(strings.TrimSpace(err.Error())))
			return
		}

		logger.Info("Reset clients cache")
		newCache, err := newFactory(newJobsCfg)
		if err != nil {
			logger.Error(err, "Failed to construct client cache")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		loop.Reload(newJobsCfg, newCache)
	})

	logger.Info("Yare startup completed", "version", version, "aws_sdk_v1", useAWSSDKV1, "listen_address", addr)

	srv := &http.Server{Addr: addr, Handler: mux}
	return srv.ListenAndServe()
}

package promutil

import (
	"sort"
	"strings"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
)

var (
	APIRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yare_api_requests_total",
		Help: "Number of calls made to the AWS APIs",
	}, []string{"api_name"})
	APIRequestErrorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yare_api_request_errors_total",
		Help: "Number of calls to the AWS APIs which returned an error",
	}, []string{"api_name"})
	ResourceGroupTaggingAPICounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yare_resourcegrouptaggingapi_requests_total",
		Help: "Number of GetResources pages requested from the Resource Groups Tagging API",
	})
	AugmentationTasksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yare_augmentation_tasks_total",
		Help: "Number of per parent augmentation tasks run",
	})
	AugmentationTaskFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yare_augmentation_task_failures_total",
		Help: "Number of per parent augmentation tasks whose records were dropped because of an error",
	})
	ResourcesDiscoveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yare_resources_discovered_total",
		Help: "Number of child resources described",
	}, []string{"type"})
	DuplicateMetricsFilteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yare_duplicate_metrics_filtered",
		Help: "Number of info metrics dropped because another one had the same labels",
	})
)

// Metrics are the internal metrics registered on every scrape registry.
var Metrics = []prometheus.Collector{
	APIRequestsCounter,
	APIRequestErrorsCounter,
	ResourceGroupTaggingAPICounter,
	AugmentationTasksCounter,
	AugmentationTaskFailuresCounter,
	ResourcesDiscoveredCounter,
	DuplicateMetricsFilteredCounter,
}

var replacer = strings.NewReplacer(
	" ", "_",
	",", "_",
	"\t", "_",
	"/", "_",
	"\\", "_",
	".", "_",
	"-", "_",
	":", "_",
	"=", "_",
	"“", "_",
	"@", "_",
	"<", "_",
	">", "_",
	"%", "_percent",
)

type PrometheusMetric struct {
	Name   string
	Labels map[string]string
	Value  float64
}

func NewPrometheusMetric(name string, labelKeys, labelValues []string, value float64) *PrometheusMetric {
	labels := make(map[string]string, len(labelKeys))
	for i, key := range labelKeys {
		labels[key] = labelValues[i]
	}
	return &PrometheusMetric{
		Name:   name,
		Labels: labels,
		Value:  value,
	}
}

// AddIfMissingLabelPair sets key to value unless the label is already present.
func (p *PrometheusMetric) AddIfMissingLabelPair(key, value string) {
	if _, ok := p.Labels[key]; !ok {
		p.Labels[key] = value
	}
}

// LabelsSignature is a hash of the sorted label pairs.
func (p *PrometheusMetric) LabelsSignature() uint64 {
	return model.LabelsToSignature(p.Labels)
}

func (p *PrometheusMetric) LabelNames() []string {
	names := make([]string, 0, len(p.Labels))
	for name := range p.Labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PrometheusCollector struct {
	metrics []*PrometheusMetric
}

func NewPrometheusCollector(metrics []*PrometheusMetric) *PrometheusCollector {
	return &PrometheusCollector{
		metrics: metrics,
	}
}

func (p *PrometheusCollector) Describe(_ chan<- *prometheus.Desc) {
	// The set of info metrics depends on what was discovered, so the collector
	// stays "unchecked" by not sending any descriptor.
}

func (p *PrometheusCollector) Collect(metrics chan<- prometheus.Metric) {
	for _, metric := range p.metrics {
		metrics <- createMetric(metric)
	}
}

func createMetric(metric *PrometheusMetric) prometheus.Metric {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        metric.Name,
		Help:        "Information about a discovered child resource",
		ConstLabels: metric.Labels,
	})

	gauge.Set(metric.Value)
	return gauge
}

func PromString(text string) string {
	text = splitString(text)
	return strings.ToLower(sanitize(text))
}

func PromStringTag(text string, labelsSnakeCase bool) (bool, string) {
	var s string
	if labelsSnakeCase {
		s = PromString(text)
	} else {
		s = sanitize(text)
	}
	return model.LabelName(s).IsValid(), s
}

// sanitize replaces some invalid chars with an underscore
func sanitize(text string) string {
	if strings.ContainsAny(text, "“%") {
		// '“' is a multi byte rune and '%' expands to a whole word
		return replacer.Replace(text)
	}

	b := []byte(text)
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case ' ', ',', '\t', '/', '\\', '.', '-', ':', '=', '@', '<', '>':
			b[i] = '_'
		}
	}
	return *(*string)(unsafe.Pointer(&b))
}

// splitString puts a dot between a lowercase letter or digit and a following
// uppercase letter, so that PromString can turn camel case into snake case.
func splitString(text string) string {
	sb := strings.Builder{}
	sb.Grow(len(text) + 4)

	i := 0
	for i < len(text) {
		c := text[i]
		sb.WriteByte(c)
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if i < (len(text) - 1) {
				c = text[i+1]
				if c >= 'A' && c <= 'Z' {
					sb.WriteByte('.')
					sb.WriteByte(c)
					i++
				}
			}
		}
		i++
	}
	return sb.String()
}

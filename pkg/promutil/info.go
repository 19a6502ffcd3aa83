package promutil

import (
	"strconv"
	"strings"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/dimensions"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

type labelSet map[string]struct{}

// BuildInfoMetricName returns the name of the info metric of a family, e.g.
// yare_ecs_service_info.
func BuildInfoMetricName(family string) string {
	return "yare_" + PromString(family) + "_info"
}

// BuildResourceInfoMetrics returns one info metric per discovered child. All
// metrics sharing a name carry the same label names, and duplicates are dropped.
func BuildResourceInfoMetrics(results []model.ChildResourceResult, labelsSnakeCase bool, logger logging.Logger) []*PrometheusMetric {
	metrics := make([]*PrometheusMetric, 0)
	observedMetricLabels := make(map[string]labelSet)

	for _, result := range results {
		contextLabelKeys, contextLabelValues := contextToLabels(result.Context, labelsSnakeCase, logger)
		family := config.SupportedFamilies.GetFamily(result.Type)

		for _, record := range result.Data {
			size := 4 + len(record.Tags) + len(contextLabelKeys)
			keys, values := make([]string, 0, size), make([]string, 0, size)

			keys = append(keys, "arn", "name", "parent", "job")
			values = append(values, string(record.ID), record.Name, string(record.Parent), result.JobName)
			if record.Status != "" {
				keys = append(keys, "status")
				values = append(values, record.Status)
			}
			keys = append(keys, contextLabelKeys...)
			values = append(values, contextLabelValues...)

			if family != nil {
				for _, d := range dimensions.For(*family, record) {
					ok, promDim := PromStringTag(d.Name, labelsSnakeCase)
					if !ok {
						logger.Warn("dimension name is an invalid prometheus label name", "dimension", d.Name)
						continue
					}
					keys = append(keys, "dimension_"+promDim)
					values = append(values, d.Value)
				}
			}

			for _, tag := range record.Tags {
				ok, promTag := PromStringTag(tag.Key, labelsSnakeCase)
				if !ok {
					logger.Warn("tag name is an invalid prometheus label name", "tag", tag.Key)
					continue
				}
				keys = append(keys, "tag_"+promTag)
				values = append(values, tag.Value)
			}

			metricName := BuildInfoMetricName(result.Type)
			recordLabelsForMetric(metricName, keys, observedMetricLabels)
			metrics = append(metrics, NewPrometheusMetric(metricName, keys, values, 0))
		}
	}

	return ensureLabelConsistencyAndRemoveDuplicates(metrics, observedMetricLabels)
}

func contextToLabels(context *model.ScrapeContext, labelsSnakeCase bool, logger logging.Logger) ([]string, []string) {
	if context == nil {
		return []string{}, []string{}
	}

	size := 3 + len(context.CustomTags)
	keys, values := make([]string, 0, size), make([]string, 0, size)

	keys = append(keys, "region", "account_id")
	values = append(values, context.Region, context.AccountID)

	// Omitted when the account has no alias, queries work either way
	if context.AccountAlias != "" {
		keys = append(keys, "account_alias")
		values = append(values, context.AccountAlias)
	}

	for _, label := range context.CustomTags {
		ok, promTag := PromStringTag(label.Key, labelsSnakeCase)
		if !ok {
			logger.Warn("custom tag name is an invalid prometheus label name", "tag", label.Key)
			continue
		}
		keys = append(keys, "custom_tag_"+promTag)
		values = append(values, label.Value)
	}

	return keys, values
}

func recordLabelsForMetric(metricName string, labelKeys []string, observedMetricLabels map[string]labelSet) {
	if _, ok := observedMetricLabels[metricName]; !ok {
		observedMetricLabels[metricName] = make(labelSet, len(labelKeys))
	}
	for _, label := range labelKeys {
		observedMetricLabels[metricName][label] = struct{}{}
	}
}

func ensureLabelConsistencyAndRemoveDuplicates(metrics []*PrometheusMetric, observedMetricLabels map[string]labelSet) []*PrometheusMetric {
	metricKeys := make(map[string]struct{}, len(metrics))
	output := make([]*PrometheusMetric, 0, len(metrics))

	for _, metric := range metrics {
		for label := range observedMetricLabels[metric.Name] {
			metric.AddIfMissingLabelPair(label, "")
		}

		var sb strings.Builder
		sb.WriteString(metric.Name)
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(metric.LabelsSignature(), 10))
		metricKey := sb.String()

		if _, exists := metricKeys[metricKey]; exists {
			DuplicateMetricsFilteredCounter.Inc()
			continue
		}
		metricKeys[metricKey] = struct{}{}
		output = append(output, metric)
	}

	return output
}

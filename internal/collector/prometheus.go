package collector

import (
	"context"
	"strings"

	"codeberg.org/mutker/ecobee-exporter/internal/extract"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ecobee"
	subsystem = "exporter"
)

type family struct {
	desc   *prometheus.Desc
	labels []string
}

type descriptors struct {
	families map[string]family

	scrapeDuration   *prometheus.Desc
	thermostats      *prometheus.Desc
	extractionErrors *prometheus.Desc
	collectError     *prometheus.Desc
}

func newDescriptors() descriptors {
	d := descriptors{
		families: make(map[string]family),
		scrapeDuration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "scrape_duration_seconds"),
			"Time spent collecting thermostat data",
			nil, nil),
		thermostats: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "thermostats"),
			"Thermostats whose detail was fetched in the last cycle",
			nil, nil),
		extractionErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "extraction_errors"),
			"Extraction failures in the last cycle",
			[]string{"extractor"}, nil),
		collectError: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "collect_error"),
			"Collection cycle failed",
			nil, nil),
	}

	for _, m := range extract.Metrics() {
		d.families[m.Name] = family{
			desc:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "", m.Name), m.Help, m.Labels, nil),
			labels: m.Labels,
		}
	}

	return d
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, f := range c.descs.families {
		ch <- f.desc
	}
	ch <- c.descs.scrapeDuration
	ch <- c.descs.thermostats
	ch <- c.descs.extractionErrors
	ch <- c.descs.collectError
}

// Collect implements prometheus.Collector. A failed cycle yields a single
// invalid metric so the scrape itself fails.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	res, err := c.run(context.Background(), c.clock.Now())
	if err != nil {
		c.log.Error().Err(err).Msg("Collection cycle failed")
		ch <- prometheus.NewInvalidMetric(c.descs.collectError, err)
		return
	}

	seen := make(map[string]struct{}, len(res.Observations))
	for _, o := range res.Observations {
		f, ok := c.descs.families[o.Name]
		if !ok {
			continue
		}

		values := make([]string, len(f.labels))
		for i, l := range f.labels {
			values[i] = o.Labels[l]
		}

		key := o.Name + "\xff" + strings.Join(values, "\xff")
		if _, dup := seen[key]; dup {
			c.log.Debug().
				Str("metric", o.Name).
				Strs("labels", values).
				Msg("Dropping duplicate series")
			continue
		}
		seen[key] = struct{}{}

		ch <- prometheus.MustNewConstMetric(f.desc, prometheus.GaugeValue, o.Value, values...)
	}

	ch <- prometheus.MustNewConstMetric(c.descs.scrapeDuration, prometheus.GaugeValue, res.Duration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.descs.thermostats, prometheus.GaugeValue, float64(res.Thermostats))
	for name, n := range res.ExtractionErrors {
		ch <- prometheus.MustNewConstMetric(c.descs.extractionErrors, prometheus.GaugeValue, float64(n), name)
	}
}

var _ prometheus.Collector = (*Collector)(nil)

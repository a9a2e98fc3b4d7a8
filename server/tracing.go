package server

import (
	"io"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/opentracing/opentracing-go"
	zipkinot "github.com/openzipkin-contrib/zipkin-go-opentracing"
	"github.com/openzipkin/zipkin-go"
	zipkinmodel "github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	serviceName = "cloud-blob-service"

	// span tags with this prefix become labels of the span duration metrics
	labelTagPrefix = "cloud_"
)

var invalidMetricChars = regexp.MustCompile("[^a-zA-Z0-9_]")

// PrometheusReporter is a custom zipkin Reporter
// which sends span durations to Prometheus
type PrometheusReporter struct {
	mu         sync.Mutex
	registerer prometheus.Registerer

	// Each span name is published as a separate Histogram metric
	// using metric names of the form cloud_span_<span-name>_duration_seconds
	histogramVecMap map[string]*prometheus.HistogramVec

	// label keys a span name's HistogramVec was created with
	registeredLabelKeysMap map[string][]string
}

// NewPrometheusReporter returns a new PrometheusReporter registering its metrics with registerer
func NewPrometheusReporter(registerer prometheus.Registerer) *PrometheusReporter {
	return &PrometheusReporter{
		registerer:             registerer,
		histogramVecMap:        make(map[string]*prometheus.HistogramVec),
		registeredLabelKeysMap: make(map[string][]string),
	}
}

// Send implements reporter.Reporter
func (pr *PrometheusReporter) Send(span zipkinmodel.SpanModel) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	name := invalidMetricChars.ReplaceAllString(span.Name, "_")
	labelKeysFromSpan, labelValuesFromSpan := getLabels(span)

	var labelValuesToUse prometheus.Labels
	expectedLabelKeys, found := pr.registeredLabelKeysMap[name]
	if !found {
		histogramVec := prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cloud_span_" + name + "_duration_seconds",
				Help: "Span " + name + " duration, by span name",
			},
			labelKeysFromSpan,
		)
		if err := pr.registerer.Register(histogramVec); err != nil {
			if existing, ok := err.(prometheus.AlreadyRegisteredError); ok {
				histogramVec = existing.ExistingCollector.(*prometheus.HistogramVec)
			} else {
				log.WithError(err).WithField("span", name).Warn("Unable to register span metric")
				return
			}
		}
		pr.histogramVecMap[name] = histogramVec
		pr.registeredLabelKeysMap[name] = labelKeysFromSpan
		labelValuesToUse = labelValuesFromSpan
	} else {
		// the label keys must match those the metric was created with
		labelValuesToUse = make(prometheus.Labels, len(expectedLabelKeys))
		for _, key := range expectedLabelKeys {
			labelValuesToUse[key] = labelValuesFromSpan[key]
		}
	}

	observer, err := pr.histogramVecMap[name].GetMetricWith(labelValuesToUse)
	if err != nil {
		log.WithError(err).WithField("span", name).Warn("Inconsistent span labels")
		return
	}
	observer.Observe(span.Duration.Seconds())
}

// Close implements reporter.Reporter
func (pr *PrometheusReporter) Close() error { return nil }

// extract from the span the tags that we want to add as labels to its Prometheus metric
func getLabels(span zipkinmodel.SpanModel) ([]string, prometheus.Labels) {
	var keys []string
	labels := make(prometheus.Labels)
	for key, value := range span.Tags {
		if strings.HasPrefix(key, labelTagPrefix) {
			keys = append(keys, key)
			labels[key] = value
		}
	}
	return keys, labels
}

type multiReporter []reporter.Reporter

func (m multiReporter) Send(span zipkinmodel.SpanModel) {
	for _, r := range m {
		r.Send(span)
	}
}

func (m multiReporter) Close() error {
	var firstErr error
	for _, r := range m {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetupTracer installs the global opentracing tracer. Spans always go to the
// Prometheus reporter and, when zipkinURL is set, to zipkin as well.
// The returned closer flushes the reporters.
func SetupTracer(listenAddress string, zipkinURL string) (io.Closer, error) {
	var rep reporter.Reporter = NewPrometheusReporter(prometheus.DefaultRegisterer)
	if zipkinURL != "" {
		// ex: "http://zipkin:9411/api/v2/spans"
		rep = multiReporter{zipkinhttp.NewReporter(zipkinURL), rep}
	}

	endpoint, err := zipkin.NewEndpoint(serviceName, endpointHostPort(listenAddress))
	if err != nil {
		rep.Close()
		return nil, err
	}
	tracer, err := zipkin.NewTracer(rep,
		zipkin.WithLocalEndpoint(endpoint),
		zipkin.WithSharedSpans(true),
		zipkin.WithTraceID128Bit(true),
	)
	if err != nil {
		rep.Close()
		return nil, err
	}

	opentracing.SetGlobalTracer(zipkinot.Wrap(tracer))
	logrus.WithFields(logrus.Fields{"url": zipkinURL}).Info("started tracer")
	return rep, nil
}

func endpointHostPort(listenAddress string) string {
	host, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

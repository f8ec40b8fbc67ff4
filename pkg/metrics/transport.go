package metrics

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bucketsConfig = []float64{50, 100, 300, 500, 1000, 5000}
)

const (
	// EnvLatencyBuckets represents an environment variable, which is formatted like "100,200,300,400" as string
	EnvLatencyBuckets     = "CATALOG_PROMETHEUS_LATENCY_BUCKETS"
	RequestsCollectorName = "api_requests_total"
	LatencyCollectorName  = "api_request_duration_milliseconds"

	// transportErrorCode labels requests that never got a response.
	transportErrorCode = "error"
)

type routeKey struct{}

// WithRoute tags the outgoing request with its route template, which is used
// as the route label instead of the request path.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(routeKey{}).(string); ok {
		return r
	}
	return "unknown"
}

// Transport is an http.RoundTripper that records the number of API requests
// and their latency partitioned by status code, method and route.
type Transport struct {
	next     http.RoundTripper
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func setBucket() {
	var buckets []float64
	conf, ok := os.LookupEnv(EnvLatencyBuckets)
	if ok {
		for _, v := range strings.Split(conf, ",") {
			f64v, err := strconv.ParseFloat(v, 64)
			if err != nil {
				panic(err)
			}
			buckets = append(buckets, f64v)
		}
		bucketsConfig = buckets
	}
}

// NewTransport wraps next. A nil next uses http.DefaultTransport.
func NewTransport(name string, next http.RoundTripper) *Transport {
	setBucket()

	if next == nil {
		next = http.DefaultTransport
	}

	t := Transport{next: next}
	t.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem:   catalogConsole,
			Name:        RequestsCollectorName,
			Help:        "Number of API requests partitioned by status code, method and route.",
			ConstLabels: prometheus.Labels{"client": name},
		}, []string{"code", "method", "route"})

	t.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem:   catalogConsole,
		Name:        LatencyCollectorName,
		Help:        "Time spent on API requests partitioned by status code, method and route.",
		ConstLabels: prometheus.Labels{"client": name},
		Buckets:     bucketsConfig,
	}, []string{"code", "method", "route"})

	return &t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	code := transportErrorCode
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	route := routeFromContext(req.Context())
	since := float64(time.Since(start).Milliseconds())
	t.requests.WithLabelValues(code, req.Method, route).Inc()
	t.latency.WithLabelValues(code, req.Method, route).Observe(since)

	return resp, err
}

// Collectors returns collector for your own collector registry.
func (t *Transport) Collectors() []prometheus.Collector {
	return []prometheus.Collector{t.requests, t.latency}
}

// Register registers the collectors with r. When an identical collector is
// already registered, the transport switches to it.
func (t *Transport) Register(r prometheus.Registerer) error {
	if err := r.Register(t.requests); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		t.requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := r.Register(t.latency); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		t.latency = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}

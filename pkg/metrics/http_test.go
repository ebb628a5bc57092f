package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsCountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/buy-offers", 200, 10*time.Millisecond)
	m.Observe("POST", "/api/v1/buy-offers", 200, 20*time.Millisecond)
	m.Observe("POST", "/api/v1/buy-offers", 409, 5*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "foodrescue_http_requests_total")
	if mf == nil {
		t.Fatal("requests metric not exported")
	}
	var ok, conflict float64
	for _, metric := range mf.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "status", "200"):
			ok = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "status", "409"):
			conflict = metric.GetCounter().GetValue()
		}
	}
	if ok != 2 || conflict != 1 {
		t.Fatalf("expected 2 ok and 1 conflict, got %f and %f", ok, conflict)
	}

	if sum, err := fetchHistogramSum(mfs, "foodrescue_http_request_duration_seconds", "route", "/api/v1/buy-offers"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if sum <= 0 {
		t.Fatalf("expected positive duration sum, got %f", sum)
	}
}

func TestNilHTTPMetricsIsNoop(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", 200, time.Millisecond)
}

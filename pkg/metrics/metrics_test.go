package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncOrderCreated()
	m.IncGatewayFailure("timeout")
	m.IncOrphanedGatewayOrder()
	m.IncOrphanedGatewayOrder()
	m.IncPaymentVerified(VerifyPathWebhook)
	m.IncDuplicateWebhook()
	m.ObserveGatewayLatency(120 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_orphaned_gateway_orders_total", "", ""); err != nil {
		t.Fatalf("fetch orphaned: %v", err)
	} else if got != 2 {
		t.Fatalf("expected orphaned=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_gateway_failures_total", "reason", "timeout"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_payments_verified_total", "path", VerifyPathWebhook); err != nil {
		t.Fatalf("fetch verified: %v", err)
	} else if got != 1 {
		t.Fatalf("expected verified=1, got %f", got)
	}
	if mf := findMetricFamily(mfs, "checkout_gateway_request_seconds"); mf == nil {
		t.Fatal("expected latency histogram")
	} else if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", sum)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.IncOrderCreated()
	m.IncOrphanedGatewayOrder()
	m.IncPaymentVerified(VerifyPathClient)

	var o *OutboxMetrics
	o.IncPublished("order.paid")

	NewCheckoutMetrics(nil).IncDuplicateWebhook()
}

func TestOutboxMetricsAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order.paid")
	m.IncFailed("")
	m.IncTerminal("order.created")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_failed_total", "event_type", "unknown"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "outbox_events_published_total") {
		t.Fatalf("expected exposition to include published counter, got %s", body)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" || matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

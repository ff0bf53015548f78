package ytresolve

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if count := testutil.CollectAndCount(m.ExtractionAttempts); count != 0 {
		t.Fatalf("expected a freshly registered counter vec to report 0 series, got %d", count)
	}
}

func TestGetManifestRecordsAttemptAndLatencyMetrics(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodHead:
			return headOrProbeResponse(), nil
		case strings.Contains(r.URL.Path, "/youtubei/v1/player"):
			if clientNameOf(r) == clientNameIOS {
				return jsonResponse(http.StatusOK, okPlayerResponseFmt), nil
			}
		}
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		return nil, nil
	})

	reg := prometheus.NewRegistry()
	cfg := testConfig(rt)
	cfg.Metrics = NewMetrics(reg)

	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	if _, err := r.GetManifest(context.Background(), VideoID("jNQXAC9IVRw"), ManifestRequest{}); err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}

	got := testutil.ToFloat64(cfg.Metrics.ExtractionAttempts.WithLabelValues("ios", "ok"))
	if got != 1 {
		t.Fatalf("expected 1 successful ios attempt recorded, got %v", got)
	}
	if samples := testutil.CollectAndCount(cfg.Metrics.ManifestLatency); samples != 1 {
		t.Fatalf("expected manifest latency histogram to have recorded an observation, got %d", samples)
	}
}

func TestGetManifestRecordsPersonaFailureMetric(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodHead:
			return headOrProbeResponse(), nil
		case strings.Contains(r.URL.Path, "/youtubei/v1/player"):
			switch clientNameOf(r) {
			case clientNameIOS:
				return jsonResponse(http.StatusOK, loginRequiredResponse), nil
			case clientNameTVEmbedded:
				return jsonResponse(http.StatusOK, tvEmbeddedOKResponse), nil
			}
		case strings.Contains(r.URL.Path, "/watch"):
			return jsonResponse(http.StatusOK, watchPageBody), nil
		case strings.Contains(r.URL.Path, "base.js"):
			return jsonResponse(http.StatusOK, playerScriptBody), nil
		}
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		return nil, nil
	})

	reg := prometheus.NewRegistry()
	cfg := testConfig(rt)
	cfg.Metrics = NewMetrics(reg)

	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	if _, err := r.GetManifest(context.Background(), VideoID("jNQXAC9IVRw"), ManifestRequest{}); err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}

	got := testutil.ToFloat64(cfg.Metrics.PersonaFailures.WithLabelValues("ios", "unplayable"))
	if got != 1 {
		t.Fatalf("expected 1 ios unplayable failure recorded, got %v", got)
	}
}

package adminserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/metrics"
)

var testClient *database.Client

func TestMain(m *testing.M) {
	url := os.Getenv("CCN_TEST_DB")
	if url == "" {
		os.Exit(0)
	}

	cfg := &config.Config{Database: config.DatabaseSettings{URL: url}}
	client, err := database.NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testClient = client

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func TestHealthPathDefaultsWhenUnset(t *testing.T) {
	if got := healthPath(config.AdminSettings{}); got != "/health" {
		t.Fatalf("expected default health path /health, got %s", got)
	}
	if got := healthPath(config.AdminSettings{HealthPath: "/healthz"}); got != "/healthz" {
		t.Fatalf("expected configured health path /healthz, got %s", got)
	}
}

func TestMetricsPathDefaultsWhenUnset(t *testing.T) {
	if got := metricsPath(config.AdminSettings{}); got != "/metrics" {
		t.Fatalf("expected default metrics path /metrics, got %s", got)
	}
}

func TestHandlePendingReportsDepthAndSample(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	srv := New(config.AdminSettings{ListenAddr: "127.0.0.1:0"}, testClient, repos.Pending, metrics.New(), nil)
	defer srv.Shutdown(context.Background())

	h := &handlers{db: testClient, pending: repos.Pending, logger: nil}
	req := httptest.NewRequest(http.MethodGet, "/debug/pending", nil)
	rec := httptest.NewRecorder()
	h.handlePending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealthReportsDatabaseStatus(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}

	h := &handlers{db: testClient, logger: nil}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a healthy database, got %d", rec.Code)
	}
}

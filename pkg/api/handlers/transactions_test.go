package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpark/accessd/pkg/txlog"
)

func newTxFixture(t *testing.T, now time.Time) *TransactionsHandler {
	t.Helper()
	dir := t.TempDir()

	log, err := txlog.Open(filepath.Join(dir, "transactions"))
	require.NoError(t, err)

	h := NewTransactionsHandler(log,
		txlog.OpenStats(filepath.Join(dir, "daily_stats.json")),
		txlog.NewRing(10))
	h.now = func() time.Time { return now }
	return h
}

func appendTx(t *testing.T, h *TransactionsHandler, name, card string, reader int, status string, at time.Time) {
	t.Helper()
	require.NoError(t, h.log.Append(txlog.Transaction{
		Name: name, Card: card, Reader: reader, Status: status, Timestamp: at.Unix(),
	}))
}

func TestAnalyticsBreakdowns(t *testing.T) {
	now := time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC)
	h := newTxFixture(t, now)

	morning := now.Add(-9 * time.Hour) // 09:00
	appendTx(t, h, "Alice", "100", 1, txlog.StatusGranted, morning)
	appendTx(t, h, "Alice", "100", 1, txlog.StatusGranted, morning.Add(time.Minute))
	appendTx(t, h, "Bob", "200", 2, txlog.StatusDenied, morning.Add(2*time.Minute))
	appendTx(t, h, "Eve", "300", 1, txlog.StatusBlocked, now.AddDate(0, 0, -2))

	w := httptest.NewRecorder()
	h.GetAnalytics(w, httptest.NewRequest(http.MethodGet, "/get_analytics?days=7", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp AnalyticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	a := resp.Analytics

	assert.Equal(t, 4, a.Total)
	assert.Equal(t, 2, a.ByStatus[txlog.StatusGranted])
	assert.Equal(t, 1, a.ByStatus[txlog.StatusDenied])
	assert.Equal(t, 1, a.ByStatus[txlog.StatusBlocked])
	assert.Equal(t, 3, a.ByReader["1"])
	assert.Equal(t, 9, a.PeakHour)
	assert.Equal(t, "2026-03-20", a.PeakDay)
	assert.Equal(t, 1, a.BusiestReader)
	assert.Equal(t, 3, a.UniqueCards)

	require.NotEmpty(t, a.TopUsers)
	assert.Equal(t, "Alice", a.TopUsers[0].Name)
	assert.Equal(t, 2, a.TopUsers[0].Count)
}

func TestAnalyticsCardFilter(t *testing.T) {
	now := time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC)
	h := newTxFixture(t, now)

	appendTx(t, h, "Alice", "100", 1, txlog.StatusGranted, now.Add(-time.Hour))
	appendTx(t, h, "Bob", "200", 1, txlog.StatusGranted, now.Add(-time.Hour))

	w := httptest.NewRecorder()
	h.GetAnalytics(w, httptest.NewRequest(http.MethodGet, "/get_analytics?card=100", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp AnalyticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Analytics.Total)
	assert.Equal(t, 1, resp.Analytics.UniqueCards)
}

func TestUserReport(t *testing.T) {
	now := time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC)
	h := newTxFixture(t, now)

	first := now.AddDate(0, 0, -3).Add(-9 * time.Hour)
	appendTx(t, h, "Alice", "100", 2, txlog.StatusGranted, first)
	appendTx(t, h, "Alice", "100", 2, txlog.StatusGranted, now.Add(-2*time.Hour))
	appendTx(t, h, "Alice", "100", 1, txlog.StatusDenied, now.Add(-time.Hour))
	appendTx(t, h, "Bob", "200", 1, txlog.StatusGranted, now.Add(-time.Hour))

	w := httptest.NewRecorder()
	h.GetUserReport(w, httptest.NewRequest(http.MethodGet, "/get_user_report?card=100&days=30", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp UserReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	report := resp.Report

	assert.Equal(t, "Alice", report.Name)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.ByStatus[txlog.StatusGranted])
	assert.Equal(t, 2, report.MostUsedDoor)
	assert.Equal(t, first.Format(time.RFC3339), report.FirstSeen)
	assert.InDelta(t, 0.1, report.AveragePerDay, 0.01)

	require.Len(t, report.Timeline, 3)
	assert.Equal(t, txlog.StatusDenied, report.Timeline[0].Status, "newest first")
}

func TestUserReportRequiresCard(t *testing.T) {
	h := newTxFixture(t, time.Now())
	w := httptest.NewRecorder()
	h.GetUserReport(w, httptest.NewRequest(http.MethodGet, "/get_user_report", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	now := time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC)
	h := newTxFixture(t, now)
	appendTx(t, h, "Alice", "100", 1, txlog.StatusGranted, now.Add(-time.Hour))

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest(http.MethodGet, "/export_transactions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ExportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Contains(t, resp.CSV, "name,card,reader,status,timestamp")
	assert.Contains(t, resp.CSV, "Alice,100,1,Access Granted,")
}

func TestIntQueryBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5000", nil)
	assert.Equal(t, 1000, intQuery(req, "limit", 200, 1, 1000))

	req = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	assert.Equal(t, 200, intQuery(req, "limit", 200, 1, 1000))

	req = httptest.NewRequest(http.MethodGet, "/?limit=-3", nil)
	assert.Equal(t, 200, intQuery(req, "limit", 200, 1, 1000))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, 200, intQuery(req, "limit", 200, 1, 1000))
}

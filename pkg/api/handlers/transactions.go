package handlers

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/maxpark/accessd/pkg/txlog"
)

const (
	// DefaultTransactionLimit matches the dashboard page size.
	DefaultTransactionLimit = 200
	maxTransactionLimit     = 1000

	defaultAnalyticsDays = 7
	defaultReportDays    = 30
	maxRangeDays         = 365

	reportTimelineEntries = 20
	topUserEntries        = 10
)

// TransactionsHandler serves transaction queries and analytics.
type TransactionsHandler struct {
	log   *txlog.Log
	stats *txlog.Stats
	ring  *txlog.Ring
	now   func() time.Time
}

// NewTransactionsHandler creates a TransactionsHandler.
func NewTransactionsHandler(log *txlog.Log, stats *txlog.Stats, ring *txlog.Ring) *TransactionsHandler {
	return &TransactionsHandler{log: log, stats: stats, ring: ring, now: time.Now}
}

// TransactionsResponse is the response body for GET /get_transactions.
type TransactionsResponse struct {
	Status       string              `json:"status"`
	Transactions []txlog.Transaction `json:"transactions"`
}

// List handles GET /get_transactions?limit=N. The in-memory ring
// serves the request when it holds enough entries; otherwise the day
// files are tailed.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", DefaultTransactionLimit, 1, maxTransactionLimit)

	txs := h.ring.Snapshot(limit)
	if len(txs) < limit {
		txs = h.log.Tail(limit)
	}
	if txs == nil {
		txs = []txlog.Transaction{}
	}
	JSON(w, http.StatusOK, TransactionsResponse{Status: "success", Transactions: txs})
}

// TodayStatsResponse is the response body for GET /get_today_stats.
type TodayStatsResponse struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	txlog.TodayStats
}

// TodayStats handles GET /get_today_stats.
func (h *TransactionsHandler) TodayStats(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	JSON(w, http.StatusOK, TodayStatsResponse{
		Status:     "success",
		Date:       now.Format("2006-01-02"),
		TodayStats: h.stats.Today(now),
	})
}

// Analytics is the payload of GET /get_analytics.
type Analytics struct {
	Days          int            `json:"days"`
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByReader      map[string]int `json:"by_reader"`
	Hourly        [24]int        `json:"hourly"`
	Daily         map[string]int `json:"daily"`
	TopUsers      []UserCount    `json:"top_users"`
	PeakHour      int            `json:"peak_hour"`
	PeakDay       string         `json:"peak_day"`
	BusiestReader int            `json:"busiest_reader"`
	UniqueCards   int            `json:"unique_cards"`
}

// UserCount is one entry of the top-users list.
type UserCount struct {
	Name  string `json:"name"`
	Card  string `json:"card"`
	Count int    `json:"count"`
}

// AnalyticsResponse is the response body for GET /get_analytics.
type AnalyticsResponse struct {
	Status    string    `json:"status"`
	Analytics Analytics `json:"analytics"`
}

// GetAnalytics handles GET /get_analytics?days=N&card=C. An optional
// card filter narrows the report to a single cardholder.
func (h *TransactionsHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", defaultAnalyticsDays, 1, maxRangeDays)
	card := r.URL.Query().Get("card")

	txs := h.loadRange(days)
	if card != "" {
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.Card == card {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	a := Analytics{
		Days:     days,
		ByStatus: make(map[string]int),
		ByReader: make(map[string]int),
		Daily:    make(map[string]int),
	}
	byUser := make(map[string]UserCount)
	cards := make(map[string]struct{})

	for _, tx := range txs {
		at := time.Unix(tx.Timestamp, 0).UTC()
		a.Total++
		a.ByStatus[tx.Status]++
		a.ByReader[strconv.Itoa(tx.Reader)]++
		a.Hourly[at.Hour()]++
		a.Daily[at.Format("2006-01-02")]++
		cards[tx.Card] = struct{}{}

		key := tx.Name + "|" + tx.Card
		uc := byUser[key]
		uc.Name, uc.Card = tx.Name, tx.Card
		uc.Count++
		byUser[key] = uc
	}

	a.UniqueCards = len(cards)
	a.PeakHour = peakHour(a.Hourly)
	a.PeakDay = peakKey(a.Daily)
	if busiest := peakKey(a.ByReader); busiest != "" {
		a.BusiestReader, _ = strconv.Atoi(busiest)
	}
	a.TopUsers = topUsers(byUser, topUserEntries)

	JSON(w, http.StatusOK, AnalyticsResponse{Status: "success", Analytics: a})
}

// UserReport is the payload of GET /get_user_report.
type UserReport struct {
	Card          string              `json:"card"`
	Name          string              `json:"name"`
	Days          int                 `json:"days"`
	Total         int                 `json:"total"`
	ByStatus      map[string]int      `json:"by_status"`
	FavoriteHour  int                 `json:"favorite_hour"`
	MostUsedDoor  int                 `json:"most_used_reader"`
	FirstSeen     string              `json:"first_seen,omitempty"`
	LastSeen      string              `json:"last_seen,omitempty"`
	AveragePerDay float64             `json:"average_per_day"`
	Timeline      []txlog.Transaction `json:"timeline"`
}

// UserReportResponse is the response body for GET /get_user_report.
type UserReportResponse struct {
	Status string     `json:"status"`
	Report UserReport `json:"report"`
}

// GetUserReport handles GET /get_user_report?card=C&days=N.
func (h *TransactionsHandler) GetUserReport(w http.ResponseWriter, r *http.Request) {
	card := r.URL.Query().Get("card")
	if card == "" {
		BadRequest(w, "card query parameter is required")
		return
	}
	days := intQuery(r, "days", defaultReportDays, 1, maxRangeDays)

	report := UserReport{
		Card:     card,
		Days:     days,
		ByStatus: make(map[string]int),
	}

	var hourly [24]int
	readers := make(map[string]int)
	var matched []txlog.Transaction
	for _, tx := range h.loadRange(days) {
		if tx.Card != card {
			continue
		}
		matched = append(matched, tx)

		at := time.Unix(tx.Timestamp, 0).UTC()
		report.Total++
		report.Name = tx.Name
		report.ByStatus[tx.Status]++
		hourly[at.Hour()]++
		readers[strconv.Itoa(tx.Reader)]++
	}

	if report.Total > 0 {
		first := time.Unix(matched[0].Timestamp, 0).UTC()
		last := time.Unix(matched[len(matched)-1].Timestamp, 0).UTC()
		report.FirstSeen = first.Format(time.RFC3339)
		report.LastSeen = last.Format(time.RFC3339)
		report.FavoriteHour = peakHour(hourly)
		if busiest := peakKey(readers); busiest != "" {
			report.MostUsedDoor, _ = strconv.Atoi(busiest)
		}
		report.AveragePerDay = float64(report.Total) / float64(days)
	}

	// Newest first, capped.
	start := len(matched) - reportTimelineEntries
	if start < 0 {
		start = 0
	}
	timeline := matched[start:]
	report.Timeline = make([]txlog.Transaction, 0, len(timeline))
	for i := len(timeline) - 1; i >= 0; i-- {
		report.Timeline = append(report.Timeline, timeline[i])
	}

	JSON(w, http.StatusOK, UserReportResponse{Status: "success", Report: report})
}

// ExportResponse is the response body for GET /export_transactions.
type ExportResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	CSV    string `json:"csv"`
}

// Export handles GET /export_transactions?days=N, returning the
// window as CSV inside the JSON envelope.
func (h *TransactionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", defaultAnalyticsDays, 1, maxRangeDays)
	txs := h.loadRange(days)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"name", "card", "reader", "status", "timestamp"})
	for _, tx := range txs {
		_ = cw.Write([]string{
			tx.Name,
			tx.Card,
			strconv.Itoa(tx.Reader),
			tx.Status,
			time.Unix(tx.Timestamp, 0).UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		InternalServerError(w, "Failed to build export")
		return
	}

	JSON(w, http.StatusOK, ExportResponse{Status: "success", Count: len(txs), CSV: buf.String()})
}

// loadRange reads the last N whole days up to now, oldest first.
func (h *TransactionsHandler) loadRange(days int) []txlog.Transaction {
	now := h.now().UTC()
	return h.log.Range(now.AddDate(0, 0, -days), now)
}

func intQuery(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func peakHour(hourly [24]int) int {
	peak := 0
	for h, n := range hourly {
		if n > hourly[peak] {
			peak = h
		}
	}
	return peak
}

func peakKey(counts map[string]int) string {
	best := ""
	for k, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && k < best) {
			best = k
		}
	}
	return best
}

func topUsers(byUser map[string]UserCount, limit int) []UserCount {
	out := make([]UserCount, 0, len(byUser))
	for _, uc := range byUser {
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Card < out[j].Card
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

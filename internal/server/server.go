package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/brandradar/brandradar/internal/monitoring"
	"github.com/brandradar/brandradar/internal/storage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultDays = 7
	maxDays     = 365
)

// Monitor is the monitoring surface exposed over HTTP
type Monitor interface {
	Run(ctx context.Context) (*models.RunSummary, error)
	GetMetrics() string
	ListRuns(ctx context.Context) ([]string, error)
	GetRun(ctx context.Context, name string) (*models.RunSummary, error)
}

// Server serves health, metrics, manual triggers and the read API
type Server struct {
	store   storage.Store
	monitor Monitor
	router  *mux.Router
	now     func() time.Time
}

// New creates a server and registers its routes
func New(store storage.Store, monitor Monitor) *Server {
	s := &Server{
		store:   store,
		monitor: monitor,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/trigger", s.handleTrigger).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/brands", s.handleListBrands).Methods(http.MethodGet)
	api.HandleFunc("/brands", s.handleUpsertBrand).Methods(http.MethodPost)
	api.HandleFunc("/brands/{id:[0-9]+}", s.handleGetBrand).Methods(http.MethodGet)
	api.HandleFunc("/mentions", s.handleListMentions).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id:[0-9]+}/dismiss", s.handleDismissAlert).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleSentimentStats).Methods(http.MethodGet)
	api.HandleFunc("/topics", s.handleTopicStats).Methods(http.MethodGet)
	api.HandleFunc("/sources", s.handleSourceStats).Methods(http.MethodGet)
	api.HandleFunc("/timeline", s.handleTimeline).Methods(http.MethodGet)
	api.HandleFunc("/monitor", s.handleTrigger).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{name}", s.handleGetRun).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	}

	counts, err := s.store.Counts(r.Context())
	if err != nil {
		logrus.Errorf("Health check failed: %v", err)
		body["status"] = "unhealthy"
		body["database"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	body["database"] = "connected"
	body["counts"] = counts
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.monitor.GetMetrics()))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	summary, err := s.monitor.Run(r.Context())
	switch {
	case errors.Is(err, monitoring.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "error", "message": err.Error()})
	case err != nil:
		logrus.Errorf("Manual monitoring trigger failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": summary.String(),
			"summary": summary,
		})
	}
}

func (s *Server) handleListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.store.ListBrands(r.Context())
	if err != nil {
		s.internalError(w, "list brands", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(brands))
}

type brandRequest struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleUpsertBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	brand, created, err := s.store.UpsertBrand(r.Context(), models.Brand{Name: req.Name, Keywords: req.Keywords})
	if err != nil {
		s.internalError(w, "upsert brand", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, brand)
}

func (s *Server) handleGetBrand(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	brand, err := s.store.GetBrand(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}
	if err != nil {
		s.internalError(w, "get brand", err)
		return
	}
	writeJSON(w, http.StatusOK, brand)
}

func (s *Server) handleListMentions(w http.ResponseWriter, r *http.Request) {
	filter, err := s.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	mentionFilter := models.MentionFilter{
		BrandID:   filter.BrandID,
		Since:     filter.Since,
		Source:    models.SourceKind(q.Get("source")),
		Sentiment: models.SentimentLabel(q.Get("sentiment")),
		Limit:     storage.MaxMentionResults,
	}
	if mentionFilter.Sentiment != "" && !mentionFilter.Sentiment.Valid() {
		writeError(w, http.StatusBadRequest, "sentiment must be positive, neutral or negative")
		return
	}

	mentions, err := s.store.ListMentions(r.Context(), mentionFilter)
	if err != nil {
		s.internalError(w, "list mentions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(mentions))
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	brandID, err := parseBrandID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := s.store.ListActiveAlerts(r.Context(), brandID)
	if err != nil {
		s.internalError(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(alerts))
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	err := s.store.DismissAlert(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		s.internalError(w, "dismiss alert", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleSentimentStats(w http.ResponseWriter, r *http.Request) {
	filter, err := s.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.store.SentimentStats(r.Context(), filter)
	if err != nil {
		s.internalError(w, "sentiment stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTopicStats(w http.ResponseWriter, r *http.Request) {
	filter, err := s.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	topics, err := s.store.TopicStats(r.Context(), filter)
	if err != nil {
		s.internalError(w, "topic stats", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(topics))
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	filter, err := s.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sources, err := s.store.SourceStats(r.Context(), filter)
	if err != nil {
		s.internalError(w, "source stats", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(sources))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filter, err := s.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := s.store.Timeline(r.Context(), filter)
	if err != nil {
		s.internalError(w, "timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilSlice(points))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.monitor.ListRuns(r.Context())
	if errors.Is(err, monitoring.ErrArchiveDisabled) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}

	names := make([]string, 0, len(runs))
	for _, run := range runs {
		names = append(names, strings.TrimPrefix(run, monitoring.ArchivePrefix))
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.monitor.GetRun(r.Context(), mux.Vars(r)["name"])
	if errors.Is(err, monitoring.ErrArchiveDisabled) || errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.internalError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	logrus.Errorf("Failed to %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// statsFilter reads the brand_id and days query parameters
func (s *Server) statsFilter(r *http.Request) (models.StatsFilter, error) {
	brandID, err := parseBrandID(r)
	if err != nil {
		return models.StatsFilter{}, err
	}

	days := defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > maxDays {
			return models.StatsFilter{}, errors.New("days must be between 1 and 365")
		}
	}

	return models.StatsFilter{
		BrandID: brandID,
		Since:   s.now().Add(-time.Duration(days) * 24 * time.Hour),
	}, nil
}

func parseBrandID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("brand_id")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("brand_id must be a positive integer")
	}
	return id, nil
}

// nonNilSlice keeps empty listings encoded as [] rather than null
func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

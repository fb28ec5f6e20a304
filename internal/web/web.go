package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shifpost/internal/bulk"
	"shifpost/internal/config"
	"shifpost/internal/export"
	"shifpost/internal/ics"
	appLog "shifpost/internal/log"
	"shifpost/internal/metrics"
	"shifpost/internal/model"
	"shifpost/internal/slot"
	"shifpost/internal/store"
	"shifpost/internal/summary"
	"shifpost/internal/validate"
)

const (
	// UserHeader carries the caller's user id. It is not authenticated.
	UserHeader = "X-User-ID"

	maxJSONBody     = 1 << 20
	maxCalendarBody = ics.MaxFeedBytes
)

// Server provides the shift API over a Store.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	exporter *export.Exporter
	fetcher  *ics.Fetcher
	metrics  *metrics.Metrics
	loc      *time.Location
	mux      *http.ServeMux
}

// NewServer constructs a new Server. fetcher may be nil, in which case
// importing by URL is rejected.
func NewServer(cfg *config.Config, st *store.Store, exp *export.Exporter, fetcher *ics.Fetcher, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		exporter: exp,
		fetcher:  fetcher,
		metrics:  m,
		loc:      st.Location(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("GET /api/palette", s.handlePalette)
	s.mux.HandleFunc("GET /api/shifts", s.withUser(s.handleListShifts))
	s.mux.HandleFunc("GET /api/shifts/{date}", s.withUser(s.handleGetShift))
	s.mux.HandleFunc("PUT /api/shifts/{date}", s.withUser(s.handlePutShift))
	s.mux.HandleFunc("DELETE /api/shifts/{date}", s.withUser(s.handleDeleteShift))
	s.mux.HandleFunc("POST /api/shifts/bulk", s.withUser(s.handleBulk))
	s.mux.HandleFunc("GET /api/summary", s.withUser(s.handleSummary))
	s.mux.HandleFunc("GET /api/export/ics", s.withUser(s.handleExportICS))
	s.mux.HandleFunc("GET /api/export/report", s.withUser(s.handleExportReport))
	s.mux.HandleFunc("POST /api/import/ics", s.withUser(s.handleImportICS))
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

// withUser resolves and validates the X-User-ID header.
func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := validate.UserID(r.Header.Get(UserHeader))
		if err != nil {
			writeError(w, http.StatusBadRequest, UserHeader+": "+err.Error())
			return
		}
		h(w, r, user)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePalette(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, paletteResponse{TimeSlots: bulk.Palette, AllDay: slot.AllDay})
}

func (s *Server) handleListShifts(w http.ResponseWriter, r *http.Request, user string) {
	var records []model.Shift
	month := r.URL.Query().Get("month")
	if month == "" {
		records = s.store.List(user)
	} else {
		m, err := validate.Month(month, s.loc)
		if err != nil {
			s.fail(w, err)
			return
		}
		records = s.exporter.MonthShifts(user, m)
	}

	resp := shiftsResponse{Month: month, Shifts: make([]shiftDTO, 0, len(records))}
	for _, rec := range records {
		resp.Shifts = append(resp.Shifts, toDTO(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetShift(w http.ResponseWriter, r *http.Request, user string) {
	date, err := validate.Date(r.PathValue("date"), s.loc)
	if err != nil {
		s.fail(w, err)
		return
	}
	rec, ok := s.store.Get(user, date)
	if !ok {
		writeError(w, http.StatusNotFound, "no shift on "+date.Format(model.DateLayout))
		return
	}
	writeJSON(w, http.StatusOK, toDTO(rec))
}

// handlePutShift replaces the slots of one date. An empty list deletes it.
//
// PUT /api/shifts/2024-12-15  {"time_slots": ["09:00-13:00"]}
func (s *Server) handlePutShift(w http.ResponseWriter, r *http.Request, user string) {
	date, err := validate.Date(r.PathValue("date"), s.loc)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req putShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	slots, err := validate.TimeSlots(req.TimeSlots)
	if err != nil {
		s.fail(w, err)
		return
	}

	if len(slots) == 0 {
		if s.store.Delete(user, date) {
			s.metrics.ShiftDeletes.Inc()
		}
		appLog.Info("shift cleared", "user", user, "date", date.Format(model.DateLayout))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.store.Upsert(user, date, slots)
	s.metrics.ShiftSaves.Inc()
	rec, _ := s.store.Get(user, date)
	appLog.Info("shift saved", "user", user, "date", rec.Key(), "slots", len(rec.TimeSlots))
	writeJSON(w, http.StatusOK, toDTO(rec))
}

func (s *Server) handleDeleteShift(w http.ResponseWriter, r *http.Request, user string) {
	date, err := validate.Date(r.PathValue("date"), s.loc)
	if err != nil {
		s.fail(w, err)
		return
	}
	existed := s.store.Delete(user, date)
	if existed {
		s.metrics.ShiftDeletes.Inc()
	}
	appLog.Info("shift deleted", "user", user, "date", date.Format(model.DateLayout), "existed", existed)
	w.WriteHeader(http.StatusNoContent)
}

// handleBulk applies the same slots to every selected weekday of a month,
// skipping dates before today.
//
// POST /api/shifts/bulk  {"month": "2024-12", "weekdays": [2, 4], "time_slots": ["18:00-22:00"]}
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, user string) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	month, err := validate.Month(req.Month, s.loc)
	if err != nil {
		s.fail(w, err)
		return
	}
	weekdays, err := bulk.Weekdays(req.Weekdays)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: %v", validate.ErrInvalid, err))
		return
	}
	slots, err := validate.TimeSlots(req.TimeSlots)
	if err != nil {
		s.fail(w, err)
		return
	}

	dates, err := bulk.TargetDates(month, weekdays, s.exporter.Now(), s.loc)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: %v", validate.ErrInvalid, err))
		return
	}

	var stored, removed int
	if len(slots) == 0 {
		removed = s.store.BulkDelete(user, dates)
		s.metrics.ShiftDeletes.Add(float64(removed))
	} else {
		stored = s.store.BulkUpsert(user, dates, slots)
		s.metrics.ShiftSaves.Add(float64(stored))
	}
	appLog.Info("bulk shift update", "user", user, "month", req.Month, "dates", len(dates), "stored", stored, "removed", removed)

	resp := bulkResponse{Dates: make([]string, 0, len(dates)), Stored: stored}
	for _, d := range dates {
		resp.Dates = append(resp.Dates, d.Format(model.DateLayout))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, user string) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	wage, ok := s.wageParam(w, r)
	if !ok {
		return
	}
	records := s.exporter.MonthShifts(user, month)
	sum := summary.Compute(records, wage)
	writeJSON(w, http.StatusOK, summaryResponse{
		Month:           month.Format("2006-01"),
		HourlyWage:      wage,
		Days:            len(records),
		TotalHours:      sum.TotalHours,
		ProjectedIncome: sum.ProjectedIncome,
	})
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request, user string) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	doc, err := s.exporter.Calendar(user, month)
	if err != nil {
		s.fail(w, err)
		return
	}
	appLog.Info("calendar exported", "user", user, "file", doc.Filename, "events", doc.Events, "skipped", doc.Skipped)
	writeFile(w, doc.Body, doc.Filename, doc.ContentType)
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request, user string) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	wage, ok := s.wageParam(w, r)
	if !ok {
		return
	}
	file, err := s.exporter.Report(r.Context(), user, month, wage, r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if file.Fallback {
		w.Header().Set("X-Report-Fallback", "html")
	}
	appLog.Info("report exported", "user", user, "file", file.Filename)
	writeFile(w, file.Body, file.Filename, file.ContentType)
}

// handleImportICS reads a calendar from the request body, or from the feed
// named by ?url=, and replaces the slots of every date it covers in month.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request, user string) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}

	var body []byte
	if feed := r.URL.Query().Get("url"); feed != "" {
		if s.fetcher == nil {
			writeError(w, http.StatusBadRequest, "importing from a url is not enabled")
			return
		}
		res, err := s.fetcher.Fetch(r.Context(), feed)
		if errors.Is(err, ics.ErrFeedTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "calendar too large")
			return
		}
		if err != nil {
			appLog.Error("calendar feed fetch failed", err, "user", user)
			writeError(w, http.StatusBadGateway, "failed to fetch calendar feed")
			return
		}
		body = res.Body
	} else {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCalendarBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "calendar too large")
			return
		}
		body = b
	}

	res, err := ics.Import(body, month, s.loc)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: calendar: %v", validate.ErrInvalid, err))
		return
	}

	resp := importResponse{Occurrences: res.Occurrences, Skipped: res.Skipped, Dates: []string{}}
	for _, day := range res.Days {
		slots, err := validate.TimeSlots(day.TimeSlots)
		if err != nil {
			resp.Skipped += len(day.TimeSlots)
			appLog.Warn("imported day rejected", "user", user, "date", day.Date.Format(model.DateLayout), "err", err)
			continue
		}
		if s.store.Upsert(user, day.Date, slots) {
			resp.Dates = append(resp.Dates, day.Date.Format(model.DateLayout))
		}
	}
	s.metrics.ShiftSaves.Add(float64(len(resp.Dates)))
	s.metrics.Imports.Add(float64(len(resp.Dates)))
	appLog.Info("calendar imported", "user", user, "dates", len(resp.Dates), "occurrences", res.Occurrences, "skipped", resp.Skipped)
	writeJSON(w, http.StatusOK, resp)
}

// monthParam reads ?month=YYYY-MM, defaulting to the current month.
func (s *Server) monthParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return model.MonthStart(s.exporter.Now(), s.loc), true
	}
	m, err := validate.Month(raw, s.loc)
	if err != nil {
		s.fail(w, err)
		return time.Time{}, false
	}
	return m, true
}

// wageParam reads ?wage=, defaulting to the configured hourly wage.
func (s *Server) wageParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("wage")
	if raw == "" {
		return s.cfg.HourlyWage, true
	}
	wage, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		err = validate.HourlyWage(wage)
	} else {
		err = fmt.Errorf("%w: wage %q is not a number", validate.ErrInvalid, raw)
	}
	if err != nil {
		s.fail(w, err)
		return 0, false
	}
	return wage, true
}

// fail maps validation errors to 400 and everything else to 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, validate.ErrInvalid) || errors.Is(err, export.ErrUnknownFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Error("request failed", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", validate.ErrInvalid, err)
	}
	return nil
}

func writeFile(w http.ResponseWriter, body []byte, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: strings.TrimSpace(msg)})
}

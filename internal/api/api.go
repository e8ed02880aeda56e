package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
	"github.com/joescharf/tracker/internal/tracker"
)

// maxImportBytes bounds the size of an uploaded import file.
const maxImportBytes = 10 << 20

// Server provides the REST API handlers.
type Server struct {
	svc *tracker.Service
	log *slog.Logger
}

// NewServer creates a new API server. A nil logger discards request logs.
func NewServer(svc *tracker.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{svc: svc, log: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("POST /api/v1/issues/bulk-status", s.bulkStatus)
	mux.HandleFunc("POST /api/v1/issues/import", s.importIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/triage", s.triageIssue)

	mux.HandleFunc("GET /api/v1/issues/{id}/comments", s.listComments)
	mux.HandleFunc("POST /api/v1/issues/{id}/comments", s.addComment)
	mux.HandleFunc("PUT /api/v1/issues/{id}/labels", s.setIssueLabels)

	mux.HandleFunc("GET /api/v1/labels", s.listLabels)
	mux.HandleFunc("POST /api/v1/labels", s.createLabel)

	mux.HandleFunc("GET /api/v1/reports/latency", s.latencyReport)
	mux.HandleFunc("GET /api/v1/reports/top-assignees", s.topAssignees)

	return corsMiddleware(s.logRequests(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.log.Log(r.Context(), level, "request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type validationResponse struct {
	Error   string               `json:"error"`
	Details []tracker.FieldError `json:"details"`
}

type conflictResponse struct {
	Error          string `json:"error"`
	CurrentVersion int    `json:"currentVersion"`
}

func writeValidation(w http.ResponseWriter, fields ...tracker.FieldError) {
	writeJSON(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Details: fields})
}

// writeServiceError maps a service error to its HTTP status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *tracker.ValidationError
		ce *tracker.ConflictError
		te *tracker.TableError
	)
	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve.Fields...)
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:          "conflict: issue has been modified by someone else",
			CurrentVersion: ce.CurrentVersion,
		})
	case errors.As(err, &te):
		writeError(w, http.StatusBadRequest, te.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrPartialSetNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrConstraint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrTriageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON reads the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, *tracker.FieldError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &tracker.FieldError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perr := queryInt(r, "page")
	limit, lerr := queryInt(r, "limit")
	if perr != nil || lerr != nil {
		var fields []tracker.FieldError
		for _, fe := range []*tracker.FieldError{perr, lerr} {
			if fe != nil {
				fields = append(fields, *fe)
			}
		}
		writeValidation(w, fields...)
		return
	}

	result, err := s.svc.ListIssues(r.Context(), tracker.ListQuery{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		AssigneeID: q.Get("assigneeId"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var in tracker.CreateIssueInput
	if !decodeJSON(w, r, &in) {
		return
	}
	issue, err := s.svc.CreateIssue(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.svc.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// parsePatch decodes a PATCH body. A present "assigneeId": null clears the
// assignee; an absent key leaves it alone.
func parsePatch(body map[string]json.RawMessage) (models.IssuePatch, *int, []tracker.FieldError) {
	var (
		patch   models.IssuePatch
		version *int
		fields  []tracker.FieldError
	)
	str := func(key string) *string {
		raw, ok := body[key]
		if !ok {
			return nil
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			fields = append(fields, tracker.FieldError{Field: key, Message: "must be a string"})
			return nil
		}
		return &v
	}

	patch.Title = str("title")
	patch.Description = str("description")
	if v := str("status"); v != nil {
		st := models.IssueStatus(*v)
		patch.Status = &st
	}
	if v := str("priority"); v != nil {
		p := models.IssuePriority(*v)
		patch.Priority = &p
	}
	if raw, ok := body["assigneeId"]; ok {
		patch.AssigneeSet = true
		if string(raw) != "null" {
			patch.AssigneeID = str("assigneeId")
		}
	}

	if raw, ok := body["version"]; !ok || string(raw) == "null" {
		fields = append(fields, tracker.FieldError{Field: "version", Message: "is required"})
	} else {
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			fields = append(fields, tracker.FieldError{Field: "version", Message: "must be an integer"})
		} else {
			version = &v
		}
	}
	return patch, version, fields
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if !decodeJSON(w, r, &body) {
		return
	}
	patch, version, fields := parsePatch(body)
	if len(fields) > 0 {
		writeValidation(w, fields...)
		return
	}

	issue, err := s.svc.UpdateIssue(r.Context(), r.PathValue("id"), patch, *version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IssueIDs []string `json:"issueIds"`
		Status   string   `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.svc.BulkSetStatus(r.Context(), req.IssueIDs, models.IssueStatus(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updatedCount": n})
}

// importIssues accepts either a multipart form with a "file" field or the
// CSV text as the raw request body.
func (s *Server) importIssues(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		defer func() { _ = file.Close() }()
		src = file
	}

	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))
	report, err := s.svc.ImportIssues(r.Context(), src, tracker.ImportOptions{DryRun: dryRun})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) triageIssue(w http.ResponseWriter, r *http.Request) {
	suggestion, err := s.svc.Triage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// --- Comments ---

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.svc.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var in tracker.CommentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := s.svc.AddComment(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// --- Labels ---

func (s *Server) setIssueLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LabelIDs *[]string `json:"labelIds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.LabelIDs == nil {
		writeValidation(w, tracker.FieldError{Field: "labelIds", Message: "is required"})
		return
	}
	issue, err := s.svc.SetIssueLabels(r.Context(), r.PathValue("id"), *req.LabelIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.svc.ListLabels(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) createLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	label, err := s.svc.CreateLabel(r.Context(), req.Name, req.Color)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, label)
}

// --- Reports ---

func (s *Server) latencyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ResolutionLatency(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) topAssignees(w http.ResponseWriter, r *http.Request) {
	limit, fe := queryInt(r, "limit")
	if fe != nil {
		writeValidation(w, *fe)
		return
	}
	if limit < 0 {
		writeValidation(w, tracker.FieldError{Field: "limit", Message: fmt.Sprintf("must be positive, got %d", limit)})
		return
	}
	counts, err := s.svc.TopAssignees(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

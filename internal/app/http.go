package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"barangay/api/internal/auth"
	"barangay/api/internal/domain"
	"barangay/api/internal/export"
	"barangay/api/internal/lifecycle"
	"barangay/api/internal/metrics"
	"barangay/api/internal/rbac"
	"barangay/api/internal/search"
)

const streamKeepAlive = 25 * time.Second

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	tokenSecret []byte
	metrics     *metrics.Metrics
	logger      *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewHTTPServer(service *Service, corsOrigin string, tokenSecret []byte) *HTTPServer {
	return &HTTPServer{
		service:     service,
		corsOrigin:  corsOrigin,
		tokenSecret: tokenSecret,
		metrics:     service.metrics,
		logger:      service.logger,
		closing:     make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. http.Server.Shutdown waits for
// handlers to return and never cancels their contexts, so register this
// with RegisterOnShutdown.
func (s *HTTPServer) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireActor)

		r.Route("/api/units/{unitID}", func(r chi.Router) {
			r.Get("/requests", s.handleViews)
			r.Post("/requests", s.handleSubmit)
			r.Get("/requests/stream", s.handleStream)
			r.Get("/requests/search", s.handleSearch)
			r.Get("/roster", s.handleRoster)
			r.Get("/officials", s.handleOfficials)
			r.Post("/officials", s.handleCreateOfficial)
			r.Get("/reports/{kind}", s.handleReport)
		})
		r.Route("/api/requests/{requestID}", func(r chi.Router) {
			r.Get("/", s.handleGetRequest)
			r.Get("/certificate", s.handleCertificate)
			r.Get("/issuances", s.handleIssuances)
			r.Get("/issuances/latest", s.handleLatestIssuance)
			r.Post("/{action}", s.handleTransition)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleViews(w http.ResponseWriter, r *http.Request) {
	certType, ok := certificateTypeParam(w, r)
	if !ok {
		return
	}
	views, err := s.service.Views(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), certType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body domain.Submission
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req, err := s.service.Submit(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleStream serves the unit's views as server-sent events, one "views"
// event per snapshot, until the client goes away.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	certType, ok := certificateTypeParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming unsupported", nil)
		return
	}
	stream, err := s.service.Stream(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), certType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer stream.Close()
	// streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case views, open := <-stream.C:
			if !open {
				return
			}
			payload, err := json.Marshal(views)
			if err != nil {
				s.logger.ErrorContext(r.Context(), "encode views", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: views\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	certType, ok := certificateTypeParam(w, r)
	if !ok {
		return
	}
	q := search.Query{
		Text:            query.Get("q"),
		UnitID:          chi.URLParam(r, "unitID"),
		CertificateType: certType,
		Limit:           20,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status is not recognised", nil)
			return
		}
		q.Status = status
	}
	for name, target := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a non-negative integer", nil)
			return
		}
		*target = parsed
	}
	if q.Limit > 100 {
		q.Limit = 100
	}

	resp, err := s.service.Search(r.Context(), actorFrom(r), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.service.GetRequest(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request": req,
		"allowed": lifecycle.Allowed(req.Status, rbac.Normalize(actorFrom(r).Role)),
	})
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	action, err := lifecycle.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	var body struct {
		Version int    `json:"version"`
		Format  string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	result, err := s.service.Transition(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"), action, body.Version, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCertificate(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	result, err := s.service.Certificate(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, result, format == export.FormatHTML || format == export.FormatJSON)
}

func (s *HTTPServer) handleIssuances(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.Issuances(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"), 20)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history})
}

func (s *HTTPServer) handleLatestIssuance(w http.ResponseWriter, r *http.Request) {
	entry, commit, err := s.service.LatestIssuance(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "commit": commit})
}

func (s *HTTPServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("asOf")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "asOf must be YYYY-MM-DD", nil)
			return
		}
		asOf = parsed
	}
	entries, err := s.service.Roster(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *HTTPServer) handleOfficials(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Officials(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleCreateOfficial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name          string `json:"name"`
		Position      string `json:"position"`
		ContactNumber string `json:"contactNumber"`
		Email         string `json:"email"`
		TermStart     string `json:"termStart"`
		TermEnd       string `json:"termEnd"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	official := domain.Official{
		Name:          body.Name,
		Position:      body.Position,
		ContactNumber: strings.TrimSpace(body.ContactNumber),
		Email:         strings.TrimSpace(body.Email),
	}
	fields := map[string]string{}
	for name, raw := range map[string]string{"termStart": body.TermStart, "termEnd": body.TermEnd} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
		if err != nil {
			fields[name] = "must be YYYY-MM-DD"
			continue
		}
		if name == "termStart" {
			official.TermStart = parsed
		} else {
			official.TermEnd = parsed
		}
	}
	if len(fields) > 0 {
		s.fail(w, r, &domain.ValidationError{Fields: fields})
		return
	}

	created, err := s.service.CreateOfficial(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), official)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	certType, ok := certificateTypeParam(w, r)
	if !ok {
		return
	}
	format := export.FormatHTML
	if raw := r.URL.Query().Get("format"); raw != "" {
		parsed, err := export.ParseFormat(raw)
		if err != nil || parsed == export.FormatJSON {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html, pdf or docx", nil)
			return
		}
		format = parsed
	}
	result, err := s.service.Report(r.Context(), actorFrom(r), chi.URLParam(r, "unitID"), chi.URLParam(r, "kind"), certType, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, result, format == export.FormatHTML)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, message, details)
}

var errMissingToken = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

type actorKey struct{}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey{}).(domain.Actor)
	return actor
}

func (s *HTTPServer) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.fail(w, r, errMissingToken)
			return
		}
		claims, err := auth.ParseToken(s.tokenSecret, token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, claims.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.InfoContext(ctx, "http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeFile sends an export result, inline for browser-viewable formats.
func writeFile(w http.ResponseWriter, result *export.Result, inline bool) {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func certificateTypeParam(w http.ResponseWriter, r *http.Request) (domain.CertificateType, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	if raw == "" {
		return "", true
	}
	certType, err := domain.ParseCertificateType(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type is not a known certificate type", nil)
		return "", false
	}
	return certType, true
}

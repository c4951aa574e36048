package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/media"
	"github.com/joseph-ayodele/transcripts-tracker/internal/metrics"
	"github.com/joseph-ayodele/transcripts-tracker/internal/transcription"
)

// AccountHeader carries the caller's account reference.
const AccountHeader = "X-Account-ID"

// multipartSlack covers form fields and part headers on top of the file itself.
const multipartSlack = 1 << 20

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// HTTPServer serves the transcription REST API.
type HTTPServer struct {
	server   *http.Server
	svc      *transcription.Service
	cfg      *common.Config
	metrics  *metrics.Metrics
	health   HealthFunc
	logger   *slog.Logger
	maxBody  int64
	pageSize int
}

// NewHTTPServer creates the HTTP API server. health may be nil.
func NewHTTPServer(cfg *common.Config, svc *transcription.Service, m *metrics.Metrics, health HealthFunc, logger *slog.Logger) *HTTPServer {
	h := &HTTPServer{
		svc:      svc,
		cfg:      cfg,
		metrics:  m,
		health:   health,
		logger:   logger,
		maxBody:  cfg.Upload.MaxFileSize + multipartSlack,
		pageSize: cfg.Server.ListPageSize,
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.Polling.MaxWait + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return h
}

// Handler exposes the routed handler, mainly for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/transcribe/upload", h.withMetrics("/api/transcribe/upload", h.withOwner(h.handleUpload)))
	mux.HandleFunc("GET /api/transcribe/export.xlsx", h.withMetrics("/api/transcribe/export.xlsx", h.withOwner(h.handleExport)))
	mux.HandleFunc("POST /api/transcribe/reconcile", h.withMetrics("/api/transcribe/reconcile", h.withOwner(h.handleReconcile)))
	mux.HandleFunc("GET /api/transcribe/{id}", h.withMetrics("/api/transcribe/{id}", h.withOwner(h.handleRetrieve)))
	mux.HandleFunc("GET /api/transcribe", h.withMetrics("/api/transcribe", h.withOwner(h.handleList)))
	mux.HandleFunc("GET /api/languages", h.withMetrics("/api/languages", h.handleLanguages))
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", h.metrics.Handler())
}

// withMetrics wraps handlers with request metrics and a request id.
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(wrapped, r.WithContext(common.WithRequestID(r.Context(), reqID)))

		elapsed := time.Since(start)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, wrapped.statusCode, elapsed)
		h.logger.Debug("http.request",
			"req_id", reqID,
			"method", r.Method,
			"endpoint", endpoint,
			"status", wrapped.statusCode,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
}

// withOwner resolves the calling account and stores it on the context.
func (h *HTTPServer) withOwner(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := common.ResolveOwner(strings.TrimSpace(r.Header.Get(AccountHeader)), h.cfg.Accounts)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		handler(w, r.WithContext(common.WithOwner(r.Context(), owner)))
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server in the background.
func (h *HTTPServer) Start() error {
	h.logger.Info("http.server.start", "address", h.server.Addr)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http.server.failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("http.server.stop")
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			// Let the validator phrase the rejection.
			h.writeError(w, r, h.svc.Validate(media.Candidate{Size: tooBig.Limit}))
			return
		}
		h.writeError(w, r, common.NewValidationError("multipart form with a file field is required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, common.NewValidationError("multipart form with a file field is required"))
		return
	}
	defer file.Close()

	autoDetect, _ := strconv.ParseBool(r.FormValue("auto_detect"))
	res, err := h.svc.Transcribe(r.Context(), transcription.TranscribeRequest{
		Owner: common.OwnerFromContext(r.Context()),
		File: media.Candidate{
			Reader:      file,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    header.Filename,
		},
		LanguageCode: r.FormValue("language_code"),
		AutoDetect:   autoDetect,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(w, r, common.NewValidationError("transcript id is required"))
		return
	}

	q := r.URL.Query()
	opts := transcription.RetrieveOptions{}
	if v := q.Get("wait"); v != "" {
		wait, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, common.NewValidationError("wait must be a boolean"))
			return
		}
		opts.Wait = wait
	}
	if v := q.Get("max_wait"); v != "" {
		d, err := parseWait(v)
		if err != nil {
			h.writeError(w, r, common.NewValidationError("max_wait must be a duration or a number of seconds"))
			return
		}
		opts.MaxWait = d
	}

	snap, err := h.svc.Retrieve(r.Context(), common.OwnerFromContext(r.Context()), id, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		h.writeError(w, r, common.NewValidationError("page must be an integer"))
		return
	}
	pageSize, err := intParam(q.Get("page_size"), h.pageSize)
	if err != nil {
		h.writeError(w, r, common.NewValidationError("page_size must be an integer"))
		return
	}

	out, err := h.svc.List(r.Context(), common.OwnerFromContext(r.Context()), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Reconcile(r.Context(), common.OwnerFromContext(r.Context()))
	resp := map[string]any{"stats": stats}
	if err != nil {
		if !errors.Is(err, common.ErrReconciliation) {
			h.writeError(w, r, err)
			return
		}
		resp["warning"] = common.PublicMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Export(r.Context(), common.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="transcripts.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *HTTPServer) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	codes := constants.LanguageCodes()
	out := make([]language, 0, len(codes))
	for _, c := range codes {
		out = append(out, language{Code: c, Name: constants.Languages[c]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, map[string]any{
		"languages":       out,
		"default":         constants.DefaultLanguage,
		"allowed_formats": h.svc.AllowedFormats(),
	})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("http.health.failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

type errorBody struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func (h *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.HTTPStatus(err)
	body := errorBody{Detail: common.PublicMessage(err)}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
	}

	attrs := []any{
		"req_id", common.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", code,
		"error", err,
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("http.request.failed", attrs...)
	} else {
		h.logger.Info("http.request.rejected", attrs...)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// parseWait accepts Go durations ("90s") or plain seconds ("90").
func parseWait(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, errors.New("negative wait")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative wait")
	}
	return d, nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/cobrancas/internal/async"
	"github.com/joseph-ayodele/cobrancas/internal/backup"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/export"
	"github.com/joseph-ayodele/cobrancas/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HealthFunc reports whether the service's dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// HTTPHandler serves the backup REST API.
type HTTPHandler struct {
	backups *backup.Service
	xlsx    *export.Service
	health  HealthFunc
	queue   async.Queue
	logger  *slog.Logger
}

func NewHTTPHandler(backups *backup.Service, xlsx *export.Service, health HealthFunc, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{backups: backups, xlsx: xlsx, health: health, logger: logger}
}

// WithQueue enables {"async": true} on /backup/commit, which enqueues the run and returns 202.
func (h *HTTPHandler) WithQueue(q async.Queue) *HTTPHandler {
	h.queue = q
	return h
}

// NewRouter mounts the REST API, health check and metrics endpoint.
func NewRouter(h *HTTPHandler, allowedOrigins []string, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Timeout(5 * time.Minute))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/backup", func(r chi.Router) {
		r.Post("/export", h.handleExport)
		r.Post("/commit", h.handleCommit)
		r.Post("/restore", h.handleRestore)
		r.Get("/list", h.handleList)
		r.Get("/download/{filename}", h.handleDownload)
		r.Get("/status", h.handleStatus)
	})
	if h.xlsx != nil {
		r.Get("/cobrancas/export.xlsx", h.handleXLSX)
	}
	return r
}

type backupRequest struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Async    bool   `json:"async"`
}

// decodeBody reads an optional JSON body; an empty body yields the zero request.
func decodeBody(r *http.Request) (backupRequest, error) {
	var req backupRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, common.NewAppError(common.CodeInvalidInput, "invalid JSON body", common.ErrInvalidInput)
	}
	return req, nil
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = common.WithRequestID(ctx, id)
	}
	return common.WithTrigger(common.EnsureRequestID(ctx), "http")
}

func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	mode := backup.ParseMode(req.Type)
	path, err := h.backups.Export(requestContext(r), mode)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Backup exportado com sucesso",
		"filepath":    path,
		"filename":    filepath.Base(path),
		"backup_type": mode,
	})
}

func (h *HTTPHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	mode := backup.ParseMode(req.Type)
	message := strings.TrimSpace(req.Message)
	if req.Async && h.queue != nil {
		ctx := requestContext(r)
		job := async.Job{Mode: mode, Message: message, Trigger: "http", TraceID: common.RequestIDFromContext(ctx)}
		if err := h.queue.Enqueue(ctx, job); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		respondWithJSON(w, http.StatusAccepted, map[string]any{
			"success":     true,
			"message":     "Backup agendado",
			"backup_type": mode,
			"request_id":  job.TraceID,
		})
		return
	}

	res := h.backups.BackupAndCommit(requestContext(r), mode, message)
	if !res.Success {
		respondWithJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   res.Error,
			"code":    res.Code,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Backup criado e commitado com sucesso",
		"backup_file": res.BackupFile,
		"git_result":  res.GitResult,
		"backup_type": res.BackupType,
	})
}

func (h *HTTPHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Nome do arquivo é obrigatório",
			"code":    common.CodeInvalidInput,
		})
		return
	}
	res, err := h.backups.Restore(requestContext(r), req.Filename)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Backup restaurado com sucesso",
		"restored_count":  res.RestoredCount,
		"skipped_count":   res.SkippedCount,
		"total_in_backup": res.TotalInBackup,
		"count_mismatch":  res.CountMismatch,
	})
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	files := h.backups.ListBackups(r.Context())
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"backup_files": files,
		"total_files":  len(files),
	})
}

func (h *HTTPHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := h.backups.OpenBackup(name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.respondError(w, common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to stat %s", name))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  h.backups.Status(r.Context()),
	})
}

func (h *HTTPHandler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if s := strings.TrimSpace(r.URL.Query().Get("since")); s != "" {
		d, err := utils.ParseYMD(s)
		if err != nil {
			h.respondError(w, common.NewAppError(common.CodeInvalidInput, "since must be YYYY-MM-DD", common.ErrInvalidInput))
			return
		}
		since = &d
	}
	b, err := h.xlsx.ExportCobrancasXLSX(r.Context(), since)
	if err != nil {
		h.respondError(w, common.Wrapf(common.CodeExport, common.ErrExport, err, "xlsx export failed"))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="cobrancas.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	code := common.ErrorCode(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "code", code, "error", err)
	}
	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	respondWithJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func httpStatus(code string) int {
	switch code {
	case common.CodeFileNotFound:
		return http.StatusNotFound
	case common.CodeInvalidInput, common.CodeMalformedSnapshot, common.CodeValidation:
		return http.StatusBadRequest
	case common.CodeNotARepository:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

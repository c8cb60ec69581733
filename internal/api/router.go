// Package api serves the table modifier as a JSON API over chi.
package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"tablefix/adapters/excel"
	"tablefix/app"
	"tablefix/internal/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxParamsBytes bounds rule and operation request bodies
const maxParamsBytes = 1 << 20

// TableResponse is the JSON form of a session table
type TableResponse struct {
	ID       string                   `json:"id"`
	FileName string                   `json:"file_name"`
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
}

// ErrorResponse wraps an error body
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code and message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler serves the JSON API
type Handler struct {
	router    *chi.Mux
	service   *app.ModifierService
	logger    *slog.Logger
	maxUpload int64
}

// NewHandler builds the router
func NewHandler(service *app.ModifierService, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		router:    chi.NewRouter(),
		service:   service,
		logger:    logger.With("component", "API"),
		maxUpload: maxUpload,
	}
	h.setupMiddleware()
	h.setupRoutes()
	return h
}

func (h *Handler) setupMiddleware() {
	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.Logger)
	h.router.Use(middleware.Recoverer)
}

func (h *Handler) setupRoutes() {
	h.router.Get("/healthz", h.handleHealth)

	h.router.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)

			r.Post("/dedupe", h.handleDedupe)
			r.Post("/rules", h.handleRules)
			r.Post("/rows", h.handleRows)

			r.Get("/log", h.handleLog)
			r.Get("/export.csv", h.handleExportCSV)
			r.Get("/export.xlsx", h.handleExportXLSX)
			r.Get("/profile", h.handleProfile)
			r.Post("/archive", h.handleArchive)
			r.Get("/archive", h.handleGetArchive)
		})
	})
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	// multipart framing gets some headroom; the service enforces the exact limit
	limit := h.maxUpload + 1<<20
	tooLarge := errors.TooLarge(fmt.Sprintf("file exceeds the %d MB upload limit", h.maxUpload/(1024*1024)))
	if r.ContentLength > limit {
		h.writeError(w, tooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			h.writeError(w, tooLarge)
			return
		}
		h.writeError(w, errors.InvalidInput("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	snap, err := h.service.Upload(r.Context(), "", header.Filename, file)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableResponse(snap))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse(snap))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDedupe(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RemoveDuplicates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse(snap))
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	body, err := readParams(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.service.ApplyRules(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse(snap))
}

func (h *Handler) handleRows(w http.ResponseWriter, r *http.Request) {
	body, err := readParams(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.service.AddOrDeleteRows(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse(snap))
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Log(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), chi.URLParam(r, "id"), &buf); err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, "text/csv; charset=utf-8", excel.CSVFileName, buf.Bytes())
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportXLSX(r.Context(), chi.URLParam(r, "id"), &buf); err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", excel.XLSXFileName, buf.Bytes())
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	rc, meta, err := h.service.OpenArchive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", excel.CSVFileName))
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	if !meta.LastModified.IsZero() {
		w.Header().Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("archive stream interrupted", "error", err)
	}
}

func readParams(w http.ResponseWriter, r *http.Request) (string, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParamsBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return "", errors.TooLarge("request body is too large")
		}
		return "", errors.Wrap(err, "failed to read request body")
	}
	return string(data), nil
}

func tableResponse(snap *app.Snapshot) TableResponse {
	return TableResponse{
		ID:       snap.SessionID,
		FileName: snap.FileName,
		Columns:  snap.Table.Columns,
		Rows:     snap.Table.Records(),
		RowCount: snap.Table.Len(),
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    errors.GetCode(err),
		Message: err.Error(),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

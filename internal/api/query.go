package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/storage"
)

const (
	queryRequiredMessage = "Query is required"
	genericQueryFailure  = "An error occurred while processing your query"
)

type queryRequest struct {
	Query string `json:"query"`
}

func handleTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured")
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	description, err := deps.Pipeline.Tables(r.Context())
	if err != nil {
		logFailure(deps, r, "list tables failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, errorCode(err), failureMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, description)
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured")
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	response, err := deps.Pipeline.Ask(r.Context(), question)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", queryRequiredMessage)
			return
		}
		logFailure(deps, r, "query failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, errorCode(err), failureMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not configured")
		return
	}
	if err := requireRole(r, auth.RoleExportWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	result, err := deps.Exporter.Export(r.Context(), question)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", queryRequiredMessage)
			return
		}
		logFailure(deps, r, "export failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, errorCode(err), failureMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleDownloadExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not configured")
		return
	}
	if err := requireRole(r, auth.RoleExportWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	key := r.PathValue("key")
	body, info, err := deps.Exporter.Open(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrInvalidExportKey):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_KEY", err.Error())
		return
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export not found")
		return
	case err != nil:
		logFailure(deps, r, "open export failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_READ_FAILED", err.Error())
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logFailure(deps, r, "stream export failed", err)
	}
}

// decodeQuestion writes the 400 response itself and reports false when the
// body carries no usable question.
func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request queryRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("invalid request body: %v", err))
		return "", false
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", queryRequiredMessage)
		return "", false
	}
	return request.Query, true
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrSchemaFetch):
		return "SCHEMA_FETCH_FAILED"
	case errors.Is(err, pipeline.ErrGeneration):
		return "SQL_GENERATION_FAILED"
	case errors.Is(err, pipeline.ErrExecution):
		return "QUERY_EXECUTION_FAILED"
	case errors.Is(err, pipeline.ErrSummarization):
		return "SUMMARIZATION_FAILED"
	case errors.Is(err, export.ErrUpload):
		return "EXPORT_UPLOAD_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

func failureMessage(err error) string {
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return genericQueryFailure
}

func logFailure(deps Dependencies, r *http.Request, message string, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.ErrorContext(r.Context(), message,
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("error_code", errorCode(err)),
		slog.String("error", err.Error()),
	)
}

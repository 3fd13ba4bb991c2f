package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// handleImportCSVSmart previews a bank statement. The CSV arrives either as the
// multipart field "file" or as the raw request body. Nothing is stored.
func (s *Server) handleImportCSVSmart(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	owner := sanitizeInput(r.URL.Query().Get("user_id"))
	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				decodeFailure(errBodyTooLarge).Write(w)
				return
			}
			BadRequestError("invalid multipart body").Write(w)
			return
		}
		if owner == "" {
			owner = sanitizeInput(r.FormValue("user_id"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			ValidationErrorResponse(core.NewValidationError("file", "multipart field \"file\" is required")).Write(w)
			return
		}
		defer file.Close()
		body = file
	}
	if owner == "" {
		owner = core.DefaultOwner
	}

	preview, err := s.svc.PreviewImport(r.Context(), owner, body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			decodeFailure(errBodyTooLarge).Write(w)
			return
		}
		writeServiceError(w, r, log.OpImport, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.importsPreviewed, 1)
	NewJSONResponse().Body(importPreviewJSON(preview)).Write(w)
}

func importPreviewJSON(p services.ImportPreview) api.ImportPreview {
	out := api.ImportPreview{
		Summary: api.ImportSummary{
			Total:          p.Summary.Total,
			AutoClassified: p.Summary.AutoClassified,
			NeedsReview:    p.Summary.NeedsReview,
			Invalid:        p.Summary.Invalid,
		},
		Transactions: make([]api.ImportRow, 0, len(p.Rows)),
		Errors:       make([]api.RowError, 0, len(p.Errors)),
	}
	for _, row := range p.Rows {
		out.Transactions = append(out.Transactions, api.ImportRow{
			Transaction: api.FromTransaction(row.Tx),
			Line:        row.Line,
			Confidence:  row.Classification.Confidence,
			Reason:      row.Classification.Reason,
			NeedsReview: row.Classification.NeedsReview(),
		})
	}
	for _, rowErr := range p.Errors {
		item := api.RowError{Line: rowErr.Line, Error: rowErr.Err.Error()}
		var verr *core.ValidationError
		if errors.As(rowErr.Err, &verr) {
			item.Field = verr.Field
			item.Error = verr.Reason
		}
		out.Errors = append(out.Errors, item)
	}
	return out
}

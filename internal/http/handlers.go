package http

import (
	"errors"
	"net/http"
	"sync/atomic"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// writeServiceError answers 422 for validation failures and 500 for everything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, core.ErrValidation) {
		ValidationErrorResponse(err).Write(w)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogError(r.Context(), "Request failed", err, log.ComponentService, op, nil)
	InternalServerError("internal error").Write(w)
}

// handleTransactions lists (GET) or records (POST) transactions.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := ParsePositiveInt(query, "limit", services.DefaultListLimit)
	if err != nil {
		ValidationErrorResponse(err).Write(w)
		return
	}
	txs, err := s.svc.List(r.Context(), ParseOwner(query), limit)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(api.TransactionList{Items: api.FromTransactions(txs)}).Write(w)
}

type createResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Transaction api.Transaction `json:"transaction"`
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var in api.Transaction
	if err := DecodeJSON(r, &in); err != nil {
		decodeFailure(err).Write(w)
		return
	}
	tx, err := in.ToCore()
	if err != nil {
		ValidationErrorResponse(err).Write(w)
		return
	}
	tx.Owner = sanitizeInput(tx.Owner)
	tx.Description = sanitizeInput(tx.Description)
	tx.Category = sanitizeInput(tx.Category)

	saved, err := s.svc.Submit(r.Context(), tx)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	log.NewStructuredLogger(log.FromContext(r.Context())).LogTransactionCreated(r.Context(),
		saved.ID, saved.Owner, string(saved.Type), saved.Amount.String(), saved.Category)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions?user_id="+saved.Owner).
		Body(createResponse{
			Status:      "ok",
			Message:     "Added transaction: " + saved.Owner + " " + core.FormatAmount(saved.Amount) + " " + saved.Category + " " + saved.Description,
			Transaction: api.FromTransaction(saved),
		}).
		Write(w)
}

// handleCommitBulk accepts {"transactions": [...]} or a bare array. Items that do
// not decode into a transaction are reported as failures alongside the service's.
func (s *Server) handleCommitBulk(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	var body bulkBody
	if err := DecodeJSON(r, &body); err != nil {
		decodeFailure(err).Write(w)
		return
	}

	owner := sanitizeInput(r.URL.Query().Get("user_id"))
	var (
		valid    []core.Transaction
		rejected []core.BulkFailure
	)
	for _, item := range body.Transactions {
		tx, err := item.ToCore()
		if owner != "" && tx.Owner == "" {
			tx.Owner = owner
		}
		if err != nil {
			rejected = append(rejected, core.BulkFailure{Tx: tx, Error: err.Error()})
			continue
		}
		valid = append(valid, tx)
	}

	res := s.svc.SubmitBulk(r.Context(), valid)
	res.Total += len(rejected)
	res.Failed = append(rejected, res.Failed...)
	atomic.AddInt64(&s.appMetrics.bulkCommits, 1)

	NewJSONResponse().Body(api.FromBulkResult(res)).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	query := r.URL.Query()
	days, err := ParsePositiveInt(query, "days", services.DefaultReportDays)
	if err != nil {
		ValidationErrorResponse(err).Write(w)
		return
	}
	rep, err := s.svc.Report(r.Context(), ParseOwner(query), days)
	if err != nil {
		writeServiceError(w, r, log.OpReport, err)
		return
	}
	NewJSONResponse().Body(api.FromReport(rep)).Write(w)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	var in api.ClassifyRequest
	if err := DecodeJSON(r, &in); err != nil {
		decodeFailure(err).Write(w)
		return
	}
	result := s.svc.Classify(sanitizeInput(in.Description), in.Amount)
	NewJSONResponse().Body(api.FromClassification(result)).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	cats, err := s.svc.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(api.FromCategories(cats)).Write(w)
}

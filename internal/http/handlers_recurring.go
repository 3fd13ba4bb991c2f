package http

import (
	"net/http"

	"fintrack/internal/api"
	"fintrack/internal/log"
)

// handleRecurring lists (GET) or creates (POST) recurring rules.
func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := s.svc.ListRules(r.Context(), ParseOwner(r.URL.Query()))
		if err != nil {
			writeServiceError(w, r, log.OpList, err)
			return
		}
		NewJSONResponse().Body(api.FromRules(rules)).Write(w)
	case http.MethodPost:
		s.createRule(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var in api.Rule
	if err := DecodeJSON(r, &in); err != nil {
		decodeFailure(err).Write(w)
		return
	}
	rule, err := in.ToCore()
	if err != nil {
		ValidationErrorResponse(err).Write(w)
		return
	}
	rule.Owner = sanitizeInput(rule.Owner)
	rule.Description = sanitizeInput(rule.Description)
	rule.Category = sanitizeInput(rule.Category)

	saved, err := s.svc.CreateRule(r.Context(), rule)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring rule created",
		log.FieldOwner, saved.Owner,
		log.FieldCategory, saved.Category,
		"frequency", saved.Frequency,
		"next_due", saved.NextDue.Format(api.DateLayout))
	NewJSONResponse().Status(http.StatusCreated).Body(api.FromRule(saved)).Write(w)
}

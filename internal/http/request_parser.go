// Package http provides the JSON API of the transaction service.
//
// This file implements utilities for decoding request bodies and query
// parameters into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// DecodeJSON reads a single JSON document from r's body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// ParseOwner returns the sanitized user_id query parameter, or the default owner.
func ParseOwner(query url.Values) string {
	owner := sanitizeInput(query.Get("user_id"))
	if owner == "" {
		return core.DefaultOwner
	}
	return owner
}

// ParsePositiveInt reads a positive integer query parameter, returning def when absent.
func ParsePositiveInt(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, core.NewValidationError(name, name+" must be a positive integer")
	}
	return n, nil
}

// RequireMethod returns a 405 response when r's method is not one of methods.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

func RequireGET(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodGet)
}

// decodeFailure maps a DecodeJSON error to its response.
func decodeFailure(err error) *JSONResponseBuilder {
	if errors.Is(err, errBodyTooLarge) {
		return ErrorResponse(http.StatusRequestEntityTooLarge, err.Error())
	}
	return BadRequestError(err.Error())
}

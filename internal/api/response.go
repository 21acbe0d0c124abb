package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/erazemk/trznica/internal/market"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// marketError maps the market error taxonomy to HTTP statuses. The message
// shown is the error text itself; rendering friendlier copy is the
// front-end's job.
func marketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrItemUnavailable), errors.Is(err, market.ErrInvalidState):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrSelfTransaction), errors.Is(err, market.ErrDisputeReasonRequired):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

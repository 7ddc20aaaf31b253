package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/db"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeJSON parses and validates the body. On failure it writes the 400
// itself and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", formatValidationError(err))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", e.Namespace(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleError maps domain errors to responses. Unknown errors are 500s with
// a generic message.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, catalog.ErrListingNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrForbidden), errors.Is(err, catalog.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, appointment.ErrIneligible):
		writeError(w, http.StatusConflict, "not_eligible", err.Error())
	case errors.Is(err, appointment.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update", "appointment changed while you were editing it, reload and retry")
	case errors.Is(err, appointment.ErrProviderUnavailable):
		writeError(w, http.StatusConflict, "provider_unavailable", err.Error())
	case errors.Is(err, appointment.ErrProviderBusy):
		writeError(w, http.StatusConflict, "provider_busy", err.Error())
	case errors.Is(err, appointment.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, "payment_declined", err.Error())
	case errors.Is(err, appointment.ErrInvalidBooking),
		errors.Is(err, appointment.ErrInvalidCost),
		errors.Is(err, catalog.ErrInvalidListing),
		errors.Is(err, db.ErrUnknownTable),
		errors.Is(err, db.ErrInvalidRetention):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

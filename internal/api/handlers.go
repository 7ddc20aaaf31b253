package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/auth"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		booking := appointment.BookingRequest{
			ScheduledAt:      req.ScheduledAt,
			DurationMinutes:  req.DurationMinutes,
			Type:             appointment.Type(req.Type),
			Priority:         appointment.Priority(req.Priority),
			BasePrice:        req.BasePrice,
			Charges:          toCharges(req.Charges),
			InsuranceCovered: req.InsuranceCovered,
			Currency:         req.Currency,
			ChiefComplaint:   req.ChiefComplaint,
			PaymentReference: req.PaymentReference,
			NotifyPatient:    req.NotifyPatient,
			NotifyProvider:   req.NotifyProvider,
		}
		// uuid format is already enforced by the validator.
		if req.PatientID != "" {
			booking.PatientID = uuid.MustParse(req.PatientID)
		}
		if req.ProviderID != "" {
			booking.ProviderID = uuid.MustParse(req.ProviderID)
		}
		if req.ServiceID != "" {
			id := uuid.MustParse(req.ServiceID)
			booking.ServiceID = &id
		}

		appt, err := svc.Book(r.Context(), callerFrom(r), booking)
		if err != nil {
			handleError(w, err)
			return
		}

		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusCreated, appt.VisibleTo(callerFrom(r)))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		opts := appointment.GetOptions{IncludeService: includes(r, "service")}
		detail, err := svc.Get(r.Context(), callerFrom(r), id, opts)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.ListFilter{
			Status:         appointment.Status(q.Get("status")),
			IncludeService: includes(r, "service"),
		}

		var ok bool
		if f.PatientID, ok = optionalUUID(w, q.Get("patient_id"), "patient_id"); !ok {
			return
		}
		if f.ProviderID, ok = optionalUUID(w, q.Get("provider_id"), "provider_id"); !ok {
			return
		}
		if f.From, ok = optionalTime(w, q.Get("from"), "from"); !ok {
			return
		}
		if f.To, ok = optionalTime(w, q.Get("to"), "to"); !ok {
			return
		}
		if f.Limit, f.Offset, ok = pagination(w, r); !ok {
			return
		}

		items, err := svc.List(r.Context(), callerFrom(r), f)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[appointment.Detail]{
			Items:  items,
			Count:  len(items),
			Offset: f.Offset,
		})
	}
}

func transitionAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req TransitionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Transition(r.Context(), callerFrom(r), id, appointment.Status(req.Status), req.Reason)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

// transitionToHandler serves the confirm/start/complete/no-show shortcuts.
// The body is optional and may carry a reason.
func transitionToHandler(svc AppointmentService, to appointment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req ReasonRequest
		if hasBody(r) && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Transition(r.Context(), callerFrom(r), id, to, req.Reason)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req ReasonRequest
		if hasBody(r) && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), callerFrom(r), id, req.Reason)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Reschedule(r.Context(), callerFrom(r), id, req.NewDateTime, req.Reason)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

func updateCostHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req UpdateCostRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd := appointment.CostUpdate{
			BasePrice:        req.BasePrice,
			InsuranceCovered: req.InsuranceCovered,
		}
		if req.AdditionalCharges != nil {
			charges := toCharges(*req.AdditionalCharges)
			upd.AdditionalCharges = &charges
		}

		appt, err := svc.UpdateCost(r.Context(), callerFrom(r), id, upd)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

func updateConsultationHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req UpdateConsultationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateConsultation(r.Context(), callerFrom(r), id, appointment.ConsultationUpdate{
			ChiefComplaint: req.ChiefComplaint,
			Symptoms:       req.Symptoms,
			Diagnosis:      req.Diagnosis,
			TreatmentPlan:  req.TreatmentPlan,
			ClinicalNotes:  req.ClinicalNotes,
			Prescriptions:  req.Prescriptions,
			FollowUp:       req.FollowUp,
			Referrals:      req.Referrals,
			LabOrders:      req.LabOrders,
			VitalSigns:     req.VitalSigns,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusOK, appt.VisibleTo(callerFrom(r)))
	}
}

func addNoteHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req AddNoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.AddNote(r.Context(), callerFrom(r), id, req.Content, req.Private)
		if err != nil {
			handleError(w, err)
			return
		}
		markAppointmentStale(r.Context(), appt)
		writeJSON(w, http.StatusCreated, appt.VisibleTo(callerFrom(r)))
	}
}

// markAppointmentStale drops every cached view the appointment appears in.
func markAppointmentStale(ctx context.Context, appt *appointment.Appointment) {
	MarkStale(ctx, appointment.CachePatterns(appt)...)
}

// appointmentsIdentifier partitions list entries by the caller whose
// calendar they show.
func appointmentsIdentifier(r *http.Request) string {
	c := callerFrom(r)
	if c.IsPrivileged() {
		return "all"
	}
	return c.ID.String()
}

func callerFrom(r *http.Request) auth.Caller {
	c, _ := auth.FromContext(r.Context())
	return c
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func includes(r *http.Request, relation string) bool {
	for _, v := range r.URL.Query()["include"] {
		if v == relation {
			return true
		}
	}
	return false
}

func optionalUUID(w http.ResponseWriter, raw, name string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func optionalTime(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an RFC3339 timestamp")
		return nil, false
	}
	return &t, true
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/payment"
	redisclient "github.com/abhishinde10/healthnexus/internal/redis"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubVerifier struct {
	result payment.Result
	err    error
}

func (v stubVerifier) Verify(context.Context, string, float64) (payment.Result, error) {
	return v.result, v.err
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	listings *catalog.MemoryRepository
	events   *recordingPublisher
	mr       *miniredis.Miniredis
	now      time.Time

	patient  auth.Caller
	provider auth.Caller
}

func newFixture(t *testing.T, verifier payment.Verifier) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repo:     NewMemoryRepository(),
		listings: catalog.NewMemoryRepository(),
		events:   &recordingPublisher{},
		mr:       mr,
		now:      baseNow,
		patient:  auth.Caller{ID: uuid.New(), Role: auth.RolePatient},
		provider: auth.Caller{ID: uuid.New(), Role: auth.RoleDoctor},
	}
	f.svc = NewService(f.repo, redisclient.NewRedisLocker(client, 5*time.Second), f.listings, verifier, f.events, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) book(t *testing.T, startsIn time.Duration) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), f.patient, BookingRequest{
		ProviderID:  f.provider.ID,
		ScheduledAt: f.now.Add(startsIn),
		BasePrice:   100,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

func TestBook(t *testing.T) {
	f := newFixture(t, nil)

	a, err := f.svc.Book(context.Background(), f.patient, BookingRequest{
		ProviderID:       f.provider.ID,
		ScheduledAt:      f.now.Add(48 * time.Hour),
		BasePrice:        100,
		Charges:          []Charge{{Description: "home visit", Amount: 20}},
		InsuranceCovered: 30,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
	if a.PatientID != f.patient.ID {
		t.Errorf("expected patient defaulted to caller")
	}
	if a.Cost.TotalAmount != 120 || a.Cost.PatientPayment != 90 {
		t.Errorf("expected 120/90, got %v/%v", a.Cost.TotalAmount, a.Cost.PatientPayment)
	}
	if a.DurationMinutes != DefaultDurationMinutes || a.Type != TypeConsultation || a.Priority != PriorityNormal {
		t.Errorf("expected defaults applied, got %+v", a)
	}
	if a.Version != 1 {
		t.Errorf("expected version 1, got %d", a.Version)
	}

	stored, err := f.repo.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Status != StatusScheduled {
		t.Errorf("expected stored status scheduled, got %s", stored.Status)
	}

	if got := f.events.types(); len(got) != 1 || got[0] != EventAppointmentCreated {
		t.Errorf("expected one created event, got %v", got)
	}
	if len(f.repo.Events()) != 1 {
		t.Errorf("expected one event log row, got %d", len(f.repo.Events()))
	}
}

func TestBook_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	other := auth.Caller{ID: uuid.New(), Role: auth.RolePatient}

	tests := []struct {
		name  string
		actor auth.Caller
		req   BookingRequest
		want  error
	}{
		{"in the past", f.patient, BookingRequest{ProviderID: f.provider.ID, ScheduledAt: f.now.Add(-time.Hour)}, ErrInvalidBooking},
		{"duration too short", f.patient, BookingRequest{ProviderID: f.provider.ID, ScheduledAt: f.now.Add(time.Hour), DurationMinutes: 10}, ErrInvalidBooking},
		{"duration too long", f.patient, BookingRequest{ProviderID: f.provider.ID, ScheduledAt: f.now.Add(time.Hour), DurationMinutes: 481}, ErrInvalidBooking},
		{"unknown type", f.patient, BookingRequest{ProviderID: f.provider.ID, ScheduledAt: f.now.Add(time.Hour), Type: "surgery"}, ErrInvalidBooking},
		{"insurance over total", f.patient, BookingRequest{ProviderID: f.provider.ID, ScheduledAt: f.now.Add(time.Hour), BasePrice: 10, InsuranceCovered: 20}, ErrInvalidCost},
		{"booking for another patient", f.patient, BookingRequest{PatientID: other.ID, ProviderID: f.provider.ID, ScheduledAt: f.now.Add(time.Hour)}, ErrForbidden},
		{"missing provider", f.patient, BookingRequest{ScheduledAt: f.now.Add(time.Hour)}, ErrInvalidBooking},
		{"unknown listing", f.patient, BookingRequest{ProviderID: f.provider.ID, ServiceID: ptr(uuid.New()), ScheduledAt: f.now.Add(time.Hour)}, ErrInvalidBooking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Book(ctx, tt.actor, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBook_PricesFromListing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	l := &catalog.Listing{
		ID: uuid.New(), ProviderID: f.provider.ID, Name: "Home visit", Category: "nursing",
		BasePrice: 75, Currency: "EUR", DurationMinutes: 60, Active: true,
	}
	_ = f.listings.Create(ctx, l)

	a, err := f.svc.Book(ctx, f.patient, BookingRequest{
		ProviderID:  f.provider.ID,
		ServiceID:   &l.ID,
		ScheduledAt: f.now.Add(24 * time.Hour),
		BasePrice:   1,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.Cost.BasePrice != 75 || a.Cost.Currency != "EUR" || a.DurationMinutes != 60 {
		t.Errorf("expected listing price and duration, got %+v %d", a.Cost, a.DurationMinutes)
	}

	plain, err := f.svc.Get(ctx, f.patient, a.ID, GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if plain.Service != nil {
		t.Error("expected listing not loaded without IncludeService")
	}
	full, err := f.svc.Get(ctx, f.patient, a.ID, GetOptions{IncludeService: true})
	if err != nil {
		t.Fatalf("get with service: %v", err)
	}
	if full.Service == nil || full.Service.ID != l.ID {
		t.Errorf("expected listing loaded, got %+v", full.Service)
	}
}

func TestBook_ProviderOverlap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, 48*time.Hour)

	_, err := f.svc.Book(ctx, auth.Caller{ID: uuid.New(), Role: auth.RolePatient}, BookingRequest{
		ProviderID:  f.provider.ID,
		ScheduledAt: f.now.Add(48*time.Hour + 15*time.Minute),
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	if _, err := f.svc.Book(ctx, f.patient, BookingRequest{
		ProviderID:  f.provider.ID,
		ScheduledAt: f.now.Add(48*time.Hour + 30*time.Minute),
	}); err != nil {
		t.Errorf("expected back-to-back booking to succeed, got %v", err)
	}
}

func TestBook_ProviderLocked(t *testing.T) {
	f := newFixture(t, nil)
	f.mr.Set(redisclient.HoldPrefix+providerLockKey(f.provider.ID), "someone-else")

	_, err := f.svc.Book(context.Background(), f.patient, BookingRequest{
		ProviderID:  f.provider.ID,
		ScheduledAt: f.now.Add(time.Hour),
	})
	if !errors.Is(err, ErrProviderBusy) {
		t.Errorf("expected ErrProviderBusy, got %v", err)
	}
}

func TestBook_Payment(t *testing.T) {
	tests := []struct {
		name       string
		verifier   payment.Verifier
		wantErr    error
		wantStatus Status
		wantPay    PaymentStatus
	}{
		{"verified confirms", stubVerifier{result: payment.Verified}, nil, StatusConfirmed, PaymentVerified},
		{"gateway down leaves pending", stubVerifier{err: payment.ErrUnavailable}, nil, StatusScheduled, PaymentPending},
		{"declined fails", stubVerifier{result: payment.Declined}, ErrPaymentDeclined, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.verifier)
			a, err := f.svc.Book(context.Background(), f.patient, BookingRequest{
				ProviderID:       f.provider.ID,
				ScheduledAt:      f.now.Add(48 * time.Hour),
				BasePrice:        50,
				PaymentReference: "pay_123",
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("book: %v", err)
			}
			if a.Status != tt.wantStatus || a.PaymentStatus != tt.wantPay {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantStatus, tt.wantPay, a.Status, a.PaymentStatus)
			}
			stored, _ := f.repo.Get(context.Background(), a.ID)
			if stored.Status != tt.wantStatus {
				t.Errorf("expected stored status %s, got %s", tt.wantStatus, stored.Status)
			}
		})
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, time.Hour)

	if _, err := f.svc.Transition(ctx, f.patient, a.ID, StatusConfirmed, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected patient confirm to be forbidden, got %v", err)
	}

	for _, to := range []Status{StatusConfirmed, StatusInProgress} {
		if _, err := f.svc.Transition(ctx, f.provider, a.ID, to, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	f.now = f.now.Add(25 * time.Minute)
	done, err := f.svc.Transition(ctx, f.provider, a.ID, StatusCompleted, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Consultation.ActualDuration == nil || *done.Consultation.ActualDuration != 25 {
		t.Errorf("expected actual duration 25, got %v", done.Consultation.ActualDuration)
	}
	if done.Version != 4 {
		t.Errorf("expected version 4 after three updates, got %d", done.Version)
	}

	if _, err := f.svc.Transition(ctx, f.provider, a.ID, StatusConfirmed, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition out of completed, got %v", err)
	}
	stored, _ := f.repo.Get(ctx, a.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("expected status unchanged, got %s", stored.Status)
	}
}

func TestTransition_RescheduledOnlyThroughReschedule(t *testing.T) {
	f := newFixture(t, nil)
	a := f.book(t, 48*time.Hour)

	if _, err := f.svc.Transition(context.Background(), f.provider, a.ID, StatusRescheduled, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestCancel_Eligibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	early := f.book(t, 30*time.Hour)
	if _, err := f.svc.Transition(ctx, f.provider, early.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	canceled, err := f.svc.Cancel(ctx, f.patient, early.ID, "feeling better")
	if err != nil {
		t.Fatalf("cancel 30h ahead: %v", err)
	}
	if canceled.Status != StatusCanceled || canceled.Cancellation == nil {
		t.Errorf("expected canceled with detail, got %+v", canceled)
	}

	late := f.book(t, 10*time.Hour)
	if _, err := f.svc.Transition(ctx, f.provider, late.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.patient, late.ID, ""); !errors.Is(err, ErrIneligible) {
		t.Errorf("expected ErrIneligible 10h ahead, got %v", err)
	}

	stranger := auth.Caller{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.Cancel(ctx, stranger, late.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another patient, got %v", err)
	}
}

func TestReschedule_Service(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.book(t, 3*time.Hour)
	moved, err := f.svc.Reschedule(ctx, f.patient, a.ID, f.now.Add(50*time.Hour), "conflict")
	if err != nil {
		t.Fatalf("reschedule 3h ahead: %v", err)
	}
	if moved.Status != StatusScheduled || len(moved.RescheduleHistory) != 1 {
		t.Errorf("expected scheduled with one history record, got %s/%d", moved.Status, len(moved.RescheduleHistory))
	}

	soon := f.book(t, time.Hour)
	if _, err := f.svc.Reschedule(ctx, f.patient, soon.ID, f.now.Add(80*time.Hour), ""); !errors.Is(err, ErrIneligible) {
		t.Errorf("expected ErrIneligible 1h ahead, got %v", err)
	}

	blocker := f.book(t, 100*time.Hour)
	if _, err := f.svc.Reschedule(ctx, f.patient, moved.ID, blocker.ScheduledAt, ""); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable onto a taken slot, got %v", err)
	}

	// Moving within its own slot does not clash with itself.
	if _, err := f.svc.Reschedule(ctx, f.patient, moved.ID, moved.ScheduledAt.Add(10*time.Minute), ""); err != nil {
		t.Errorf("expected shift within own slot to succeed, got %v", err)
	}
}

func TestUpdateCost(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, 48*time.Hour)

	charges := []Charge{{Description: "dressing", Amount: 20}}
	insurance := 30.0
	updated, err := f.svc.UpdateCost(ctx, f.provider, a.ID, CostUpdate{AdditionalCharges: &charges, InsuranceCovered: &insurance})
	if err != nil {
		t.Fatalf("update cost: %v", err)
	}
	if updated.Cost.TotalAmount != 120 || updated.Cost.PatientPayment != 90 {
		t.Errorf("expected 120/90, got %v/%v", updated.Cost.TotalAmount, updated.Cost.PatientPayment)
	}

	tooMuch := 500.0
	if _, err := f.svc.UpdateCost(ctx, f.provider, a.ID, CostUpdate{InsuranceCovered: &tooMuch}); !errors.Is(err, ErrInvalidCost) {
		t.Errorf("expected ErrInvalidCost, got %v", err)
	}
	if _, err := f.svc.UpdateCost(ctx, f.patient, a.ID, CostUpdate{InsuranceCovered: &insurance}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected patients to be forbidden, got %v", err)
	}

	stored, _ := f.repo.Get(ctx, a.ID)
	if stored.Cost.PatientPayment != 90 {
		t.Errorf("expected stored payment 90, got %v", stored.Cost.PatientPayment)
	}
}

func TestUpdateConsultation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, 48*time.Hour)

	diagnosis := "seasonal allergy"
	if _, err := f.svc.UpdateConsultation(ctx, f.provider, a.ID, ConsultationUpdate{Diagnosis: &diagnosis}); !errors.Is(err, ErrIneligible) {
		t.Fatalf("expected ErrIneligible before confirmation, got %v", err)
	}

	if _, err := f.svc.Transition(ctx, f.provider, a.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rx := []Prescription{{Medication: "cetirizine", Dosage: "10mg", Frequency: "daily", Duration: "7 days"}}
	updated, err := f.svc.UpdateConsultation(ctx, f.provider, a.ID, ConsultationUpdate{
		Diagnosis:     &diagnosis,
		Prescriptions: &rx,
		VitalSigns:    &VitalSigns{HeartRate: 72, Temperature: 36.8},
	})
	if err != nil {
		t.Fatalf("update consultation: %v", err)
	}
	if updated.Consultation.Diagnosis != diagnosis || len(updated.Consultation.Prescriptions) != 1 || updated.Consultation.VitalSigns.HeartRate != 72 {
		t.Errorf("unexpected consultation %+v", updated.Consultation)
	}
}

func TestAddNote_PrivacyForPatients(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, 48*time.Hour)

	if _, err := f.svc.AddNote(ctx, f.provider, a.ID, "patient anxious about needles", true); err != nil {
		t.Fatalf("provider note: %v", err)
	}
	if _, err := f.svc.AddNote(ctx, f.patient, a.ID, "please ring the bell twice", true); err != nil {
		t.Fatalf("patient note: %v", err)
	}

	asProvider, _ := f.svc.Get(ctx, f.provider, a.ID, GetOptions{})
	if len(asProvider.Notes) != 2 {
		t.Fatalf("expected provider to see 2 notes, got %d", len(asProvider.Notes))
	}
	if asProvider.Notes[1].Private {
		t.Error("expected patient notes to be forced public")
	}

	asPatient, _ := f.svc.Get(ctx, f.patient, a.ID, GetOptions{})
	if len(asPatient.Notes) != 1 || asPatient.Notes[0].AuthorRole != auth.RolePatient {
		t.Errorf("expected patient to see only the public note, got %+v", asPatient.Notes)
	}
}

func TestList_ScopedToCaller(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, 24*time.Hour)
	f.book(t, 26*time.Hour)

	otherPatient := auth.Caller{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.Book(ctx, otherPatient, BookingRequest{ProviderID: uuid.New(), ScheduledAt: f.now.Add(30 * time.Hour)}); err != nil {
		t.Fatalf("book: %v", err)
	}

	mine, err := f.svc.List(ctx, f.patient, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 own appointments, got %d", len(mine))
	}

	all, _ := f.svc.List(ctx, auth.Caller{ID: uuid.New(), Role: auth.RoleAdmin}, ListFilter{})
	if len(all) != 3 {
		t.Errorf("expected admin to see 3, got %d", len(all))
	}

	calendar, _ := f.svc.List(ctx, f.provider, ListFilter{Status: StatusScheduled})
	if len(calendar) != 2 {
		t.Errorf("expected provider to see 2, got %d", len(calendar))
	}
}

func TestConcurrentUpdateDetected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, 48*time.Hour)

	first, _ := f.repo.Get(ctx, a.ID)
	second, _ := f.repo.Get(ctx, a.ID)

	if err := first.Transition(StatusConfirmed, f.now); err != nil {
		t.Fatal(err)
	}
	if err := f.repo.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	if err := second.Transition(StatusCanceled, f.now); err != nil {
		t.Fatal(err)
	}
	if err := f.repo.Update(ctx, second); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}

	stored, _ := f.repo.Get(ctx, a.ID)
	if stored.Status != StatusConfirmed {
		t.Errorf("expected the first writer to win, got %s", stored.Status)
	}
}

func TestSendDueReminders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	soon := f.book(t, 12*time.Hour)
	later := f.book(t, 72*time.Hour)

	sent, err := f.svc.SendDueReminders(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected one reminder, got %d", sent)
	}

	stored, _ := f.repo.Get(ctx, soon.ID)
	if !stored.Communication.ReminderDelivered || len(stored.Communication.Reminders) != 1 || !stored.Communication.Reminders[0].Success {
		t.Errorf("expected a successful attempt recorded, got %+v", stored.Communication)
	}
	untouched, _ := f.repo.Get(ctx, later.ID)
	if len(untouched.Communication.Reminders) != 0 {
		t.Error("expected no reminder for the later appointment")
	}

	again, _ := f.svc.SendDueReminders(ctx, 24*time.Hour)
	if again != 0 {
		t.Errorf("expected no duplicate reminders, got %d", again)
	}
}

func TestSendDueReminders_RecordsFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.book(t, 2*time.Hour)
	f.events.fail = errors.New("broker down")

	sent, err := f.svc.SendDueReminders(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if sent != 0 {
		t.Errorf("expected nothing handed off, got %d", sent)
	}

	stored, _ := f.repo.Get(ctx, a.ID)
	attempts := stored.Communication.Reminders
	if len(attempts) != 1 || attempts[0].Success || attempts[0].Error != "broker down" {
		t.Errorf("expected failed attempt recorded, got %+v", attempts)
	}
	if stored.Communication.ReminderDelivered {
		t.Error("expected reminder to stay undelivered for a retry")
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	confirmed := f.book(t, time.Hour)
	if _, err := f.svc.Transition(ctx, f.provider, confirmed.ID, StatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	unconfirmed := f.book(t, 2*time.Hour)
	future := f.book(t, 48*time.Hour)

	f.now = f.now.Add(4 * time.Hour)
	n, err := f.svc.ExpireStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired, got %d", n)
	}

	for id, want := range map[uuid.UUID]Status{
		confirmed.ID:   StatusNoShow,
		unconfirmed.ID: StatusCanceled,
		future.ID:      StatusScheduled,
	} {
		stored, _ := f.repo.Get(ctx, id)
		if stored.Status != want {
			t.Errorf("appointment %s: expected %s, got %s", id, want, stored.Status)
		}
	}
}

func ptr[T any](v T) *T { return &v }

type recordingEvictor struct {
	mu       sync.Mutex
	patterns []string
}

func (e *recordingEvictor) Evict(_ context.Context, patterns ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns = append(e.patterns, patterns...)
}

func (e *recordingEvictor) has(pattern string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.patterns {
		if p == pattern {
			return true
		}
	}
	return false
}

func TestMaintenanceEvictsCachedViews(t *testing.T) {
	f := newFixture(t, nil)
	ev := &recordingEvictor{}
	f.svc.WithEvictor(ev)
	ctx := context.Background()

	reminded := f.book(t, 2*time.Hour)
	if _, err := f.svc.SendDueReminders(ctx, 24*time.Hour); err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	for _, p := range CachePatterns(reminded) {
		if !ev.has(p) {
			t.Errorf("expected %q evicted after reminder", p)
		}
	}

	expired := f.book(t, 3*time.Hour)
	f.now = f.now.Add(6 * time.Hour)
	if _, err := f.svc.ExpireStale(ctx, 30*time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !ev.has("appointment:" + expired.ID.String() + ":*") {
		t.Errorf("expected expired appointment evicted, got %v", ev.patterns)
	}
}

type failingUpdateRepo struct {
	*MemoryRepository
}

func (failingUpdateRepo) Update(context.Context, *Appointment) error {
	return errors.New("connection reset")
}

func TestBook_VerifiedPaymentStoredConfirmed(t *testing.T) {
	f := newFixture(t, stubVerifier{result: payment.Verified})
	f.svc.repo = failingUpdateRepo{f.repo}

	a, err := f.svc.Book(context.Background(), f.patient, BookingRequest{
		ProviderID:       f.provider.ID,
		ScheduledAt:      f.now.Add(48 * time.Hour),
		BasePrice:        50,
		PaymentReference: "pay_123",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	stored, err := f.repo.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusConfirmed || stored.PaymentStatus != PaymentVerified || stored.Version != 1 {
		t.Errorf("expected confirmed/verified at version 1, got %s/%s v%d", stored.Status, stored.PaymentStatus, stored.Version)
	}

	types := f.events.types()
	if len(types) != 2 || types[0] != EventAppointmentCreated || types[1] != EventAppointmentTransitioned {
		t.Errorf("expected created then transitioned events, got %v", types)
	}
}

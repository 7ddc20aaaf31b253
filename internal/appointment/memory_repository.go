package appointment

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository stores appointments as encoded documents, the same
// shape the Postgres repository keeps in its JSONB column, so callers never
// share pointers with the store.
type MemoryRepository struct {
	mu     sync.RWMutex
	docs   map[uuid.UUID][]byte
	events []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[uuid.UUID][]byte)}
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a.Version = 1
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	r.docs[a.ID] = doc
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decode(id)
}

func (r *MemoryRepository) decode(id uuid.UUID) (*Appointment, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	var a Appointment
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *MemoryRepository) all() []Appointment {
	result := make([]Appointment, 0, len(r.docs))
	for id := range r.docs {
		a, err := r.decode(id)
		if err != nil {
			continue
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.all() {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		result = append(result, a)
	}

	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) Update(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.decode(a.ID)
	if err != nil {
		return err
	}
	if stored.Version != a.Version {
		return ErrConcurrentUpdate
	}

	a.Version++
	doc, err := json.Marshal(a)
	if err != nil {
		a.Version--
		return err
	}
	r.docs[a.ID] = doc
	return nil
}

func (r *MemoryRepository) FindOverlapping(_ context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.all() {
		if a.ProviderID == providerID && a.Status.Active() && a.Overlaps(start, end) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) FindDueReminders(_ context.Context, from, to time.Time, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.all() {
		if len(result) == limit {
			break
		}
		if (a.Status == StatusScheduled || a.Status == StatusConfirmed) &&
			!a.Communication.ReminderDelivered &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) FindStale(_ context.Context, status Status, before time.Time, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.all() {
		if len(result) == limit {
			break
		}
		if a.Status == status && a.EndsAt().Before(before) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

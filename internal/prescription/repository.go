package prescription

import (
	"context"
	"sort"
	"sync"
)

// Repository persists appointments and their embedded prescriptions.
//
// Update must run fn as an atomic read-modify-write on a single appointment:
// no other Update on the same id may interleave, and an error from fn aborts
// without writing. Get and Update return ErrNotFound for unknown ids.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, id string, fn func(a *Appointment) error) error
	List(ctx context.Context, filter Filter) ([]*Appointment, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryRepository is an in-process Repository guarded by a mutex.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]*Appointment
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Appointment)}
}

func (m *MemoryRepository) Create(ctx context.Context, a *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; ok {
		return ErrAppointmentExists
	}
	m.items[a.ID] = a.Clone()
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, newNotFoundError("appointment", id)
	}
	return a.Clone(), nil
}

func (m *MemoryRepository) Update(ctx context.Context, id string, fn func(a *Appointment) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[id]
	if !ok {
		return newNotFoundError("appointment", id)
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return err
	}
	working.ID = id
	m.items[id] = working
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter Filter) ([]*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Appointment, 0, len(m.items))
	for _, a := range m.items {
		if filter.Match(a) {
			out = append(out, a.Clone())
		}
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepository) Close() error { return nil }

// SortNewestFirst orders appointments by creation time, newest first, then by id.
func SortNewestFirst(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

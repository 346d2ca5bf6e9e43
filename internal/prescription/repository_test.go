package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a := &Appointment{ID: "x", PatientEmail: "p@example.com", Prescription: &Record{Diagnosis: "d"}}
	require.NoError(t, repo.Create(ctx, a))
	a.Prescription.Diagnosis = "mutated"

	got, err := repo.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "d", got.Prescription.Diagnosis)

	got.Prescription.Diagnosis = "again"
	got2, err := repo.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "d", got2.Prescription.Diagnosis)

	assert.ErrorIs(t, repo.Create(ctx, &Appointment{ID: "x"}), ErrAppointmentExists)
}

func TestMemoryRepository_UpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &Appointment{ID: "x", Status: StatusBooked}))

	boom := errors.New("boom")
	err := repo.Update(ctx, "x", func(a *Appointment) error {
		a.Status = StatusCompleted
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, got.Status)

	assert.ErrorIs(t, repo.Update(ctx, "nope", func(*Appointment) error { return nil }), ErrNotFound)
}

func TestMemoryRepository_ListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &Appointment{ID: "old", PatientEmail: "p", DoctorID: "d1", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &Appointment{ID: "new", PatientEmail: "p", DoctorID: "d2", CreatedAt: base.Add(time.Hour), Prescription: &Record{}}))
	require.NoError(t, repo.Create(ctx, &Appointment{ID: "gone", PatientEmail: "p", DoctorID: "d1", CreatedAt: base, Status: StatusCancelled}))

	all, err := repo.List(ctx, Filter{PatientEmail: "p"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)

	d1, err := repo.List(ctx, Filter{DoctorID: "d1", ExcludeCancelled: true})
	require.NoError(t, err)
	require.Len(t, d1, 1)
	assert.Equal(t, "old", d1[0].ID)

	withRx, err := repo.List(ctx, Filter{WithPrescription: true})
	require.NoError(t, err)
	require.Len(t, withRx, 1)
	assert.Equal(t, "new", withRx[0].ID)
}

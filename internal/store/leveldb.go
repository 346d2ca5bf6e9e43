package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/hengadev/rxseal/internal/prescription"
)

const appointmentPrefix = "appointment:"

// LevelDBRepository stores appointments as JSON documents under
// "appointment:<id>". Updates run in a LevelDB transaction, which excludes
// every other writer until it commits or is discarded.
type LevelDBRepository struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a database directory at path.
func OpenLevelDB(path string) (*LevelDBRepository, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at '%s': %w", path, err)
	}
	return &LevelDBRepository{db: db}, nil
}

// OpenLevelDBStorage opens a database on an explicit storage backend, such as
// storage.NewMemStorage().
func OpenLevelDBStorage(stor storage.Storage) (*LevelDBRepository, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb storage: %w", err)
	}
	return &LevelDBRepository{db: db}, nil
}

func appointmentKey(id string) []byte {
	return []byte(appointmentPrefix + id)
}

func (r *LevelDBRepository) Create(ctx context.Context, a *prescription.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode appointment '%s': %w", a.ID, err)
	}

	tx, err := r.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}
	exists, err := tx.Has(appointmentKey(a.ID), nil)
	if err != nil {
		tx.Discard()
		return fmt.Errorf("failed to check appointment '%s': %w", a.ID, err)
	}
	if exists {
		tx.Discard()
		return prescription.ErrAppointmentExists
	}
	if err := tx.Put(appointmentKey(a.ID), data, nil); err != nil {
		tx.Discard()
		return fmt.Errorf("failed to store appointment '%s': %w", a.ID, err)
	}
	return tx.Commit()
}

func (r *LevelDBRepository) Get(ctx context.Context, id string) (*prescription.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.db.Get(appointmentKey(id), nil)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return decodeAppointment(data)
}

// Update runs fn inside a LevelDB transaction and writes the result back.
func (r *LevelDBRepository) Update(ctx context.Context, id string, fn func(a *prescription.Appointment) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := r.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}

	data, err := tx.Get(appointmentKey(id), nil)
	if err != nil {
		tx.Discard()
		return notFoundOr(err, id)
	}
	a, err := decodeAppointment(data)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := fn(a); err != nil {
		tx.Discard()
		return err
	}
	a.ID = id

	data, err = json.Marshal(a)
	if err != nil {
		tx.Discard()
		return fmt.Errorf("failed to encode appointment '%s': %w", id, err)
	}
	if err := tx.Put(appointmentKey(id), data, nil); err != nil {
		tx.Discard()
		return fmt.Errorf("failed to store appointment '%s': %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *LevelDBRepository) List(ctx context.Context, filter prescription.Filter) ([]*prescription.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := r.db.NewIterator(util.BytesPrefix([]byte(appointmentPrefix)), nil)
	defer iter.Release()

	var out []*prescription.Appointment
	for iter.Next() {
		a, err := decodeAppointment(iter.Value())
		if err != nil {
			return nil, err
		}
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	prescription.SortNewestFirst(out)
	return out, nil
}

// Ping reports whether the database is still open.
func (r *LevelDBRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

func (r *LevelDBRepository) Close() error {
	return r.db.Close()
}

func decodeAppointment(data []byte) (*prescription.Appointment, error) {
	var a prescription.Appointment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode appointment: %w", err)
	}
	return &a, nil
}

func notFoundOr(err error, id string) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%w: appointment '%s'", prescription.ErrNotFound, id)
	}
	return fmt.Errorf("failed to read appointment '%s': %w", id, err)
}

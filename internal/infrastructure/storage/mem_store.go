package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"

	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

const (
	keyIndex       = "id"         // composite natural key, unique
	sourceURLIndex = "source_url" // per-entry permalink, optional
)

// MemStore is an in-process record store built on go-memdb. Only one write
// transaction may be open at a time; readers see the last committed snapshot.
type MemStore struct {
	db     *memdb.MemDB
	nextID atomic.Int64
	now    func() time.Time
}

var _ ports.RecordStore = (*MemStore)(nil)

type memRecord struct {
	Institution    string
	Program        string
	DecisionDate   string
	ApplicantStats string
	SourceURL      string
	Record         domain.ApplicantRecord
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() (*MemStore, error) {
	db, err := memdb.NewMemDB(memSchema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &MemStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// InTx runs fn inside one memdb write transaction.
func (s *MemStore) InTx(ctx context.Context, fn func(tx ports.RecordTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(&memTx{txn: txn, store: s}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// All returns every record ordered by composite key.
func (s *MemStore) All(ctx context.Context) ([]domain.ApplicantRecord, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(applicantsTable, keyIndex)
	if err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	result := make([]domain.ApplicantRecord, 0)
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		result = append(result, obj.(*memRecord).Record)
	}
	return result, nil
}

// Count returns the number of stored records.
func (s *MemStore) Count(ctx context.Context) (int, error) {
	records, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}

type memTx struct {
	txn   *memdb.Txn
	store *MemStore
}

func (t *memTx) FindByKey(ctx context.Context, key domain.RecordKey) (domain.ApplicantRecord, bool, error) {
	obj, err := t.first(key)
	if err != nil || obj == nil {
		return domain.ApplicantRecord{}, false, err
	}
	return obj.Record, true, nil
}

func (t *memTx) FindBySourceURL(ctx context.Context, url string) (domain.ApplicantRecord, bool, error) {
	if url == "" {
		return domain.ApplicantRecord{}, false, nil
	}

	iter, err := t.txn.Get(applicantsTable, sourceURLIndex, url)
	if err != nil {
		return domain.ApplicantRecord{}, false, fmt.Errorf("lookup by source url: %w", err)
	}

	// Lowest id first, matching the SQL store.
	var found *memRecord
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		rec := obj.(*memRecord)
		if found == nil || rec.Record.ID < found.Record.ID {
			found = rec
		}
	}
	if found == nil {
		return domain.ApplicantRecord{}, false, nil
	}
	return found.Record, true, nil
}

func (t *memTx) Insert(ctx context.Context, record domain.ApplicantRecord) error {
	key := record.Key()
	existing, err := t.first(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: key %s already stored", domain.ErrReconciliationConflict, key)
	}

	now := t.store.now()
	record.ID = t.store.nextID.Add(1)
	record.IngestedAt = now
	record.UpdatedAt = now

	if err := t.txn.Insert(applicantsTable, newMemRecord(record)); err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}
	return nil
}

func (t *memTx) Update(ctx context.Context, prev domain.RecordKey, record domain.ApplicantRecord) error {
	existing, err := t.first(prev)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: no record stored under %s", domain.ErrReconciliationConflict, prev)
	}

	key := record.Key()
	if key != prev {
		clash, err := t.first(key)
		if err != nil {
			return err
		}
		if clash != nil {
			return fmt.Errorf("%w: key %s already stored", domain.ErrReconciliationConflict, key)
		}
	}

	record.ID = existing.Record.ID
	record.IngestedAt = existing.Record.IngestedAt
	record.UpdatedAt = t.store.now()

	if err := t.txn.Delete(applicantsTable, existing); err != nil {
		return fmt.Errorf("delete superseded record %s: %w", prev, err)
	}
	if err := t.txn.Insert(applicantsTable, newMemRecord(record)); err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}
	return nil
}

func (t *memTx) first(key domain.RecordKey) (*memRecord, error) {
	obj, err := t.txn.First(applicantsTable, keyIndex,
		key.Institution, key.Program, key.DecisionDate, key.ApplicantStats)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*memRecord), nil
}

func newMemRecord(record domain.ApplicantRecord) *memRecord {
	key := record.Key()
	return &memRecord{
		Institution:    key.Institution,
		Program:        key.Program,
		DecisionDate:   key.DecisionDate,
		ApplicantStats: key.ApplicantStats,
		SourceURL:      record.SourceURL,
		Record:         record,
	}
}

func memSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[keyIndex] = &memdb.IndexSchema{
		Name:   keyIndex,
		Unique: true,
		Indexer: &memdb.CompoundIndex{
			Indexes: []memdb.Indexer{
				&memdb.StringFieldIndex{Field: "Institution"},
				&memdb.StringFieldIndex{Field: "Program"},
				&memdb.StringFieldIndex{Field: "DecisionDate"},
				&memdb.StringFieldIndex{Field: "ApplicantStats"},
			},
		},
	}
	indexes[sourceURLIndex] = &memdb.IndexSchema{
		Name:         sourceURLIndex,
		AllowMissing: true,
		Indexer:      &memdb.StringFieldIndex{Field: "SourceURL"},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			applicantsTable: {
				Name:    applicantsTable,
				Indexes: indexes,
			},
		},
	}
}

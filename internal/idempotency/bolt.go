package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

// BoltBucket is the bucket idempotency records live in. Exported so stores
// sharing the same database file can write a receipt in one transaction.
const BoltBucket = "idempotency"

// BoltStore keeps idempotency records in an embedded BoltDB file. Bolt
// serializes writers, so the whole Begin state machine runs inside a single
// update transaction and is atomic per key. Meant for single-instance local
// deployments; multi-instance setups use the DynamoDB store.
type BoltStore struct {
	db         *bolt.DB
	ttlWindow  time.Duration
	staleAfter time.Duration
	nowFunc    func() time.Time
}

// NewBoltStore ensures the bucket exists and returns the store. The caller
// owns db and its lifecycle.
func NewBoltStore(db *bolt.DB, ttlWindow time.Duration) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BoltBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{
		db:         db,
		ttlWindow:  ttlWindow,
		staleAfter: DefaultStaleAfter,
		nowFunc:    time.Now,
	}, nil
}

// Begin atomically claims key inside one write transaction.
func (s *BoltStore) Begin(_ context.Context, key, paramsHash string) (BeginState, *Record, error) {
	now := s.nowFunc().UTC()
	var state BeginState
	var out Record

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BoltBucket))

		fresh := Record{
			Key:        key,
			Status:     StatusInProgress,
			ParamsHash: paramsHash,
			CreatedAt:  now,
			UpdatedAt:  now,
			ExpiresAt:  now.Add(s.ttlWindow).Unix(),
		}

		raw := b.Get([]byte(key))
		if raw == nil {
			state = Started
			out = fresh
			return putRecord(b, &out)
		}

		var existing Record
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}

		// Expired records are treated as absent.
		if existing.ExpiresAt > 0 && now.Unix() > existing.ExpiresAt {
			state = Started
			out = fresh
			return putRecord(b, &out)
		}

		if hashConflict(existing.ParamsHash, paramsHash) {
			state = Conflicted
			out = existing
			return nil
		}

		switch existing.Status {
		case StatusDone:
			state = Replayed
			out = existing
			return nil
		case StatusFailed:
			// retry window: take over the failed attempt
			existing.Status = StatusInProgress
			existing.ParamsHash = paramsHash
			existing.UpdatedAt = now
			state = Started
			out = existing
			return putRecord(b, &out)
		case StatusInProgress:
			if now.Sub(existing.UpdatedAt) > s.staleAfter {
				existing.UpdatedAt = now
				existing.ParamsHash = paramsHash
				state = Started
				out = existing
				return putRecord(b, &out)
			}
			state = InFlight
			out = existing
			return nil
		default:
			return fmt.Errorf("record %q has unknown status %q", key, existing.Status)
		}
	})
	if err != nil {
		return 0, nil, err
	}
	return state, &out, nil
}

// Get retrieves a record by key. Returns (nil, nil) if absent.
func (s *BoltStore) Get(_ context.Context, key string) (*Record, error) {
	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(BoltBucket)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone records the outcome so later retries with the same key replay it.
func (s *BoltStore) MarkDone(_ context.Context, key, responseBody string, responseStatus int) error {
	return s.mutate(key, func(rec *Record) {
		rec.Status = StatusDone
		rec.ResponseBody = responseBody
		rec.ResponseStatus = responseStatus
	})
}

// MarkFailed releases the key for a later retry and keeps a diagnostic note.
func (s *BoltStore) MarkFailed(_ context.Context, key, note string) error {
	return s.mutate(key, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Note = note
	})
}

func (s *BoltStore) mutate(key string, apply func(*Record)) error {
	now := s.nowFunc().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BoltBucket))
		raw := b.Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("record %q not found", key)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		apply(&rec)
		rec.UpdatedAt = now
		return putRecord(b, &rec)
	})
}

func putRecord(b *bolt.Bucket, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return b.Put([]byte(rec.Key), data)
}

// MarkDoneTx writes a DONE record inside an existing transaction on the
// shared database, letting another store commit its item and the receipt
// atomically.
func MarkDoneTx(tx *bolt.Tx, key, responseBody string, responseStatus int, now time.Time) error {
	b := tx.Bucket([]byte(BoltBucket))
	if b == nil {
		return fmt.Errorf("bucket %q missing", BoltBucket)
	}
	raw := b.Get([]byte(key))
	if raw == nil {
		return fmt.Errorf("record %q not found", key)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	rec.Status = StatusDone
	rec.ResponseBody = responseBody
	rec.ResponseStatus = responseStatus
	rec.UpdatedAt = now.UTC()
	return putRecord(b, &rec)
}

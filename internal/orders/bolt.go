package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
)

const boltBucket = "orders"

// BoltStore keeps orders in an embedded BoltDB file shared with the
// idempotency store, so CreateWithReceipt can commit both buckets in one
// transaction. Single-instance local deployments only.
type BoltStore struct {
	db      *bolt.DB
	nowFunc func() time.Time
}

// NewBoltStore ensures the orders bucket exists on the shared database.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db, nowFunc: time.Now}, nil
}

func (s *BoltStore) createInTx(tx *bolt.Tx, o *Order) (bool, error) {
	b := tx.Bucket([]byte(boltBucket))
	if b.Get([]byte(o.OrderID)) != nil {
		return false, nil
	}
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	data, err := json.Marshal(o)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}
	return true, b.Put([]byte(o.OrderID), data)
}

// Create persists o unless it already exists.
func (s *BoltStore) Create(_ context.Context, o Order) (bool, error) {
	var created bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		created, err = s.createInTx(tx, &o)
		return err
	})
	return created, err
}

// CreateWithReceipt writes the order and the DONE idempotency receipt in the
// same Bolt transaction.
func (s *BoltStore) CreateWithReceipt(_ context.Context, o Order, r Receipt) (bool, error) {
	var created bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		created, err = s.createInTx(tx, &o)
		if err != nil {
			return err
		}
		return idempotency.MarkDoneTx(tx, r.Key, r.ResponseBody, r.ResponseStatus, s.nowFunc())
	})
	return created, err
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *BoltStore) Get(_ context.Context, orderID string) (*Order, error) {
	var o Order
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(boltBucket)).Get([]byte(orderID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &o)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &o, nil
}

// UpdateStatus transitions orderID from expected to next inside one write
// transaction.
func (s *BoltStore) UpdateStatus(_ context.Context, orderID, expected, next string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		raw := b.Get([]byte(orderID))
		if raw == nil {
			return ErrStatusMismatch
		}
		var o Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("unmarshal order: %w", err)
		}
		if o.Status != expected {
			return ErrStatusMismatch
		}
		o.Status = next
		o.UpdatedAt = s.nowFunc().UTC()
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		return b.Put([]byte(orderID), data)
	})
}

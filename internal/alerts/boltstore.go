// ABOUTME: bbolt-backed alert store for persistence across restarts.
// ABOUTME: One nested bucket per tenant, alerts serialized as JSON by vulnerability ID.

package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vigilsec/vulnengine/internal/types"
)

var alertsBucket = []byte("alerts")

// BoltStore persists alerts in an embedded bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the alert database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(alertsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize alert database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(tenantID, vulnerabilityID string) (*types.Alert, error) {
	var alert *types.Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		tenant := tx.Bucket(alertsBucket).Bucket([]byte(tenantID))
		if tenant == nil {
			return ErrNotFound
		}

		raw := tenant.Get([]byte(vulnerabilityID))
		if raw == nil {
			return ErrNotFound
		}

		alert = &types.Alert{}
		return json.Unmarshal(raw, alert)
	})
	if err != nil {
		return nil, err
	}

	return alert, nil
}

func (s *BoltStore) Create(alert *types.Alert) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		tenant, err := tx.Bucket(alertsBucket).CreateBucketIfNotExists([]byte(alert.TenantID))
		if err != nil {
			return err
		}

		key := []byte(alert.VulnerabilityID)
		if tenant.Get(key) != nil {
			return ErrAlreadyExists
		}

		raw, err := json.Marshal(alert)
		if err != nil {
			return err
		}
		return tenant.Put(key, raw)
	})
}

func (s *BoltStore) Update(alert *types.Alert) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		tenant := tx.Bucket(alertsBucket).Bucket([]byte(alert.TenantID))
		if tenant == nil {
			return ErrNotFound
		}

		key := []byte(alert.VulnerabilityID)
		if tenant.Get(key) == nil {
			return ErrNotFound
		}

		raw, err := json.Marshal(alert)
		if err != nil {
			return err
		}
		return tenant.Put(key, raw)
	})
}

func (s *BoltStore) List(tenantID string, filter ListFilter) ([]types.Alert, int, error) {
	var tenantAlerts []types.Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		tenant := tx.Bucket(alertsBucket).Bucket([]byte(tenantID))
		if tenant == nil {
			return nil
		}

		return tenant.ForEach(func(_, raw []byte) error {
			var alert types.Alert
			if err := json.Unmarshal(raw, &alert); err != nil {
				return err
			}
			tenantAlerts = append(tenantAlerts, alert)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	page, total := filterPage(tenantAlerts, filter)
	return page, total, nil
}

package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/stayswap/swapsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketRecentResponses = []byte("recent_responses")
	bucketSuccessRecords  = []byte("success_records")
	bucketRollbackRecords = []byte("rollback_records")
)

// Journal persists the non-authoritative activity feed across sessions:
// recent responses, success records and rollback records. Operation state
// is deliberately never written; a restarted session must not resume
// in-flight operations it cannot resolve.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database under dataDir
func Open(dataDir string) (*Journal, error) {
	dbPath := filepath.Join(dataDir, "swapsync.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRecentResponses,
			bucketSuccessRecords,
			bucketRollbackRecords,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database
func (j *Journal) Close() error {
	return j.db.Close()
}

// feedKey orders entries chronologically within a bucket
func feedKey(ts time.Time, proposalID string) []byte {
	return []byte(fmt.Sprintf("%020d:%s", ts.UnixNano(), proposalID))
}

// AppendRecentResponse stores one activity feed entry
func (j *Journal) AppendRecentResponse(resp types.RecentResponse) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecentResponses)
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		return b.Put(feedKey(resp.RespondedAt, resp.ProposalID), data)
	})
}

// AppendSuccessRecord stores one completed-operation record
func (j *Journal) AppendSuccessRecord(rec types.SuccessRecord) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuccessRecords)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(feedKey(rec.Timestamp, rec.ProposalID), data)
	})
}

// PutRollback stores the rollback record for a proposal (upsert)
func (j *Journal) PutRollback(rec types.RollbackRecord) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRollbackRecords)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ProposalID), data)
	})
}

// DeleteRollback removes the rollback record for a proposal
func (j *Journal) DeleteRollback(proposalID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRollbackRecords).Delete([]byte(proposalID))
	})
}

// LoadRecentResponses returns persisted feed entries in chronological
// order, at most the feed cap
func (j *Journal) LoadRecentResponses() ([]types.RecentResponse, error) {
	var out []types.RecentResponse
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecentResponses)
		return b.ForEach(func(k, v []byte) error {
			var resp types.RecentResponse
			if err := json.Unmarshal(v, &resp); err != nil {
				return err
			}
			out = append(out, resp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out) > types.MaxRecentResponses {
		out = out[len(out)-types.MaxRecentResponses:]
	}
	return out, nil
}

// LoadSuccessRecords returns persisted success records in chronological
// order, at most the record cap
func (j *Journal) LoadSuccessRecords() ([]types.SuccessRecord, error) {
	var out []types.SuccessRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuccessRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.SuccessRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out) > types.MaxSuccessRecords {
		out = out[len(out)-types.MaxSuccessRecords:]
	}
	return out, nil
}

// LoadRollbacks returns every persisted rollback record
func (j *Journal) LoadRollbacks() ([]types.RollbackRecord, error) {
	var out []types.RollbackRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRollbackRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.RollbackRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes entries past their retention windows: success records
// after 5 minutes, rollback records after 10, and feed entries beyond the
// feed cap
func (j *Journal) Prune(now time.Time) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		successCutoff := feedKey(now.Add(-types.SuccessRetention), "")
		if err := deleteBefore(tx.Bucket(bucketSuccessRecords), successCutoff); err != nil {
			return err
		}

		b := tx.Bucket(bucketRollbackRecords)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec types.RollbackRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if now.Sub(rec.Timestamp) > types.RollbackRetention {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}

		return trimToNewest(tx.Bucket(bucketRecentResponses), types.MaxRecentResponses)
	})
}

// deleteBefore removes every key ordered strictly before cutoff
func deleteBefore(b *bolt.Bucket, cutoff []byte) error {
	c := b.Cursor()
	for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// trimToNewest keeps at most n newest entries in a chronologically keyed
// bucket
func trimToNewest(b *bolt.Bucket, n int) error {
	total := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		total++
	}
	excess := total - n
	if excess <= 0 {
		return nil
	}
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
		excess--
	}
	return nil
}

// Package checkpoint stores finished fits in a bolt database, so a
// dataset and model pair does not need to be fitted twice.
package checkpoint

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket for all fit records.
var MAIN = []byte("main")

// CheckpointData is a stored fit.
type CheckpointData struct {
	Parameters      []float64 `json:"parameters"`
	NegLogPosterior float64   `json:"negLogPosterior"`
	Iter            int       `json:"iterations"`
	Final           bool      `json:"final"`
}

// Key creates a record key from a dataset name and a model
// descriptor.
func Key(dataset, model string) []byte {
	return []byte(strings.Join([]string{dataset, model}, "|"))
}

// CheckpointIO reads and writes the record for a single key.
type CheckpointIO struct {
	db  *bolt.DB
	key []byte
}

// NewCheckpointIO creates a new CheckpointIO. A nil database disables
// storage.
func NewCheckpointIO(db *bolt.DB, key []byte) *CheckpointIO {
	return &CheckpointIO{
		db:  db,
		key: key,
	}
}

// Save stores the record.
func (s *CheckpointIO) Save(data *CheckpointData) error {
	if data == nil {
		return errors.New("Cannot save an empty checkpoint")
	}
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the stored record or nil if there is none.
func (s *CheckpointIO) Load() (*CheckpointData, error) {
	var data *CheckpointData

	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	if err = json.Unmarshal(b, &data); err != nil {
		return nil, err
	}

	if data == nil || len(data.Parameters) == 0 {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished fit (iter=%v, negLogPosterior=%v)", data.Iter, data.NegLogPosterior)
	} else {
		log.Noticef("Found unfinished fit (iter=%v, negLogPosterior=%v)", data.Iter, data.NegLogPosterior)
	}

	return data, nil
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database. The returned slice is a
// copy and stays valid after the transaction.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

package persistence

import (
	"encoding/json"
	"fmt"
	"sync"

	"grid-engine-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerJournal is the durable TradeJournal. Each trade is one JSON value
// under a monotonically increasing key, so Trades returns them in append
// order.
type badgerJournal struct {
	db  *badger.DB
	mu  sync.Mutex
	seq uint64
}

const journalKeyPrefix = "trade:"

// NewBadgerJournal opens (or creates) a journal at the given path. The
// sequence counter resumes from the highest existing key.
func NewBadgerJournal(dbPath string) (TradeJournal, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	j := &badgerJournal{db: db}
	if err := j.restoreSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *badgerJournal) restoreSeq() error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek to the last key under the prefix.
		it.Seek([]byte(journalKeyPrefix + "\xff"))
		if it.ValidForPrefix([]byte(journalKeyPrefix)) {
			var seq uint64
			if _, err := fmt.Sscanf(string(it.Item().Key()), journalKeyPrefix+"%020d", &seq); err == nil {
				j.seq = seq
			}
		}
		return nil
	})
}

func (j *badgerJournal) Append(trade *models.CompletedTrade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	key := fmt.Sprintf(journalKeyPrefix+"%020d", j.seq)

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (j *badgerJournal) Trades() ([]*models.CompletedTrade, error) {
	var trades []*models.CompletedTrade

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(journalKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trade models.CompletedTrade
				if err := json.Unmarshal(val, &trade); err != nil {
					return err
				}
				trades = append(trades, &trade)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

func (j *badgerJournal) Close() error {
	return j.db.Close()
}

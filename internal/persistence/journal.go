package persistence

import (
	"sync"

	"grid-engine-go/internal/models"
)

// TradeJournal records completed trades for end-of-run reporting. Appends
// happen on the event path, so implementations must be safe for concurrent
// use.
type TradeJournal interface {
	Append(trade *models.CompletedTrade) error
	Trades() ([]*models.CompletedTrade, error)
	Close() error
}

// memoryJournal keeps trades in memory. Backtests use it by default.
type memoryJournal struct {
	mu     sync.Mutex
	trades []*models.CompletedTrade
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() TradeJournal {
	return &memoryJournal{}
}

func (j *memoryJournal) Append(trade *models.CompletedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, trade)
	return nil
}

func (j *memoryJournal) Trades() ([]*models.CompletedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*models.CompletedTrade, len(j.trades))
	copy(out, j.trades)
	return out, nil
}

func (j *memoryJournal) Close() error { return nil }

package persistence

import (
	"testing"
	"time"

	"grid-engine-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrade(id string, side models.OrderSide) *models.CompletedTrade {
	return &models.CompletedTrade{
		OrderID:   id,
		Symbol:    "BTCUSDT",
		Side:      side,
		Price:     1500,
		Quantity:  0.5,
		Fee:       0.75,
		GridPrice: 1500,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testJournal(t *testing.T, journal TradeJournal) {
	t.Helper()

	trades, err := journal.Trades()
	require.NoError(t, err)
	assert.Empty(t, trades)

	require.NoError(t, journal.Append(sampleTrade("1", models.Buy)))
	require.NoError(t, journal.Append(sampleTrade("2", models.Sell)))

	trades, err = journal.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Append order is preserved.
	assert.Equal(t, "1", trades[0].OrderID)
	assert.Equal(t, "2", trades[1].OrderID)
	assert.Equal(t, models.Sell, trades[1].Side)
	assert.Equal(t, 1500.0, trades[0].GridPrice)
}

func TestMemoryJournal(t *testing.T) {
	journal := NewMemoryJournal()
	defer journal.Close()
	testJournal(t, journal)
}

func TestBadgerJournal(t *testing.T) {
	journal, err := NewBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()
	testJournal(t, journal)
}

func TestBadgerJournalResumesSequence(t *testing.T) {
	dir := t.TempDir()

	journal, err := NewBadgerJournal(dir)
	require.NoError(t, err)
	require.NoError(t, journal.Append(sampleTrade("1", models.Buy)))
	require.NoError(t, journal.Close())

	// Reopening continues after the existing entries instead of overwriting.
	journal, err = NewBadgerJournal(dir)
	require.NoError(t, err)
	defer journal.Close()
	require.NoError(t, journal.Append(sampleTrade("2", models.Sell)))

	trades, err := journal.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].OrderID)
	assert.Equal(t, "2", trades[1].OrderID)
}

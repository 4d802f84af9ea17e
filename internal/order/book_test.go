package order

import (
	"testing"

	"grid-engine-go/internal/grid"
	"grid-engine-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOrder(id string, side models.OrderSide, amount float64) *models.Order {
	return &models.Order{
		ID:     id,
		Side:   side,
		Status: models.OrderStatusOpen,
		Amount: amount,
	}
}

func TestBookPartitionsOrders(t *testing.T) {
	book := NewBook()
	buyLevel := grid.NewLevel(1400, grid.StateReadyToBuy)
	sellLevel := grid.NewLevel(1600, grid.StateReadyToSell)

	book.AddBuyOrder(openOrder("1", models.Buy, 1), buyLevel)
	book.AddSellOrder(openOrder("2", models.Sell, 1), sellLevel)
	book.AddNonGridOrder(openOrder("3", models.Sell, 2))

	assert.Len(t, book.BuyOrders(), 1)
	assert.Len(t, book.SellOrders(), 1)
	assert.Len(t, book.NonGridOrders(), 1)
	assert.Len(t, book.OpenOrders(), 3)

	lvl, ok := book.GridLevelFor("1")
	require.True(t, ok)
	assert.Equal(t, 1400.0, lvl.Price())

	_, ok = book.GridLevelFor("3")
	assert.False(t, ok)
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	book := NewBook()
	o := openOrder("1", models.Buy, 2)
	book.AddBuyOrder(o, grid.NewLevel(1400, grid.StateReadyToBuy))

	transitioned := book.UpdateOrderStatus("1", models.OrderStatusClosed, 2, 1398, 10)
	assert.True(t, transitioned)
	assert.Equal(t, models.OrderStatusClosed, o.Status)
	assert.Equal(t, 2.0, o.Filled)
	assert.Equal(t, 1398.0, o.Average)
	assert.Zero(t, o.Remaining)
	assert.Empty(t, book.OpenOrders())
}

func TestUpdateOrderStatusIsMonotonic(t *testing.T) {
	book := NewBook()
	o := openOrder("1", models.Buy, 2)
	book.AddBuyOrder(o, grid.NewLevel(1400, grid.StateReadyToBuy))

	require.True(t, book.UpdateOrderStatus("1", models.OrderStatusClosed, 2, 1398, 10))

	// A terminal order never transitions again, whatever arrives later.
	assert.False(t, book.UpdateOrderStatus("1", models.OrderStatusClosed, 2, 1398, 11))
	assert.False(t, book.UpdateOrderStatus("1", models.OrderStatusCanceled, 0, 0, 12))
	assert.False(t, book.UpdateOrderStatus("1", models.OrderStatusOpen, 0, 0, 13))
	assert.Equal(t, models.OrderStatusClosed, o.Status)
}

func TestUpdateOrderStatusPartialFillStaysOpen(t *testing.T) {
	book := NewBook()
	o := openOrder("1", models.Sell, 4)
	book.AddSellOrder(o, grid.NewLevel(1600, grid.StateReadyToSell))

	transitioned := book.UpdateOrderStatus("1", models.OrderStatusOpen, 1.5, 1601, 5)
	assert.False(t, transitioned)
	assert.Equal(t, models.OrderStatusOpen, o.Status)
	assert.Equal(t, 1.5, o.Filled)
	assert.Equal(t, 2.5, o.Remaining)
	assert.Len(t, book.OpenOrders(), 1)

	// Stale observations never roll fills back.
	book.UpdateOrderStatus("1", models.OrderStatusOpen, 1.0, 1601, 6)
	assert.Equal(t, 1.5, o.Filled)
}

func TestUpdateUnknownOrderIsIgnored(t *testing.T) {
	book := NewBook()
	assert.False(t, book.UpdateOrderStatus("missing", models.OrderStatusClosed, 1, 1, 1))
}

package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"grid-engine-go/internal/models"

	"go.uber.org/zap"
)

// simOrder is the simulator's internal order record. It is rendered into a
// wire-shaped RawOrder at the API boundary so callers see the same payloads a
// real exchange would produce.
type simOrder struct {
	id            int64
	clientOrderID string
	side          models.OrderSide
	orderType     models.OrderType
	price         float64
	quantity      float64
	executedQty   float64
	avgPrice      float64
	status        string
	createdAt     int64
	updatedAt     int64
}

// SimulatedExchange is the in-memory venue used by backtests. Market orders
// fill immediately at the current price; limit orders rest until a candle
// trades through their price. Fees and balances are not modelled here, the
// balance tracker owns those.
type SimulatedExchange struct {
	mu           sync.Mutex
	symbol       string
	fiat         float64
	crypto       float64
	currentPrice float64
	currentTime  int64
	nextOrderID  int64
	orders       map[int64]*simOrder
	logger       *zap.SugaredLogger
}

// NewSimulatedExchange creates an empty simulator for one symbol.
func NewSimulatedExchange(symbol string, initialFiat, initialCrypto float64, logger *zap.SugaredLogger) *SimulatedExchange {
	return &SimulatedExchange{
		symbol:      symbol,
		fiat:        initialFiat,
		crypto:      initialCrypto,
		nextOrderID: 1,
		orders:      make(map[int64]*simOrder),
		logger:      logger,
	}
}

// UpdatePrice advances the simulation by one candle. The price path is walked
// open, low, high, close; resting limit orders fill at their limit price the
// moment the path trades through it.
func (s *SimulatedExchange) UpdatePrice(open, high, low, close float64, timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentTime = timestamp
	for _, price := range []float64{open, low, high, close} {
		s.currentPrice = price
		s.fillRestingOrders(low, high)
	}
}

func (s *SimulatedExchange) fillRestingOrders(low, high float64) {
	for _, o := range s.orders {
		if o.status != "NEW" || o.orderType != models.Limit {
			continue
		}
		filled := (o.side == models.Buy && low <= o.price) ||
			(o.side == models.Sell && high >= o.price)
		if !filled {
			continue
		}
		o.status = "FILLED"
		o.executedQty = o.quantity
		o.avgPrice = o.price
		o.updatedAt = s.currentTime
		s.logger.Debugf("Simulated limit fill: order %d %s %.8f @ %.8f", o.id, o.side, o.quantity, o.price)
	}
}

// GetCurrentPrice returns the price set by the latest candle.
func (s *SimulatedExchange) GetCurrentPrice(_ context.Context, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentPrice <= 0 {
		return 0, &DataFetchError{Op: "ticker price", Err: fmt.Errorf("no market data loaded yet")}
	}
	return s.currentPrice, nil
}

// GetBalances returns the seeded balances. Backtests normally seed the
// balance tracker directly; this exists to satisfy the adapter interface.
func (s *SimulatedExchange) GetBalances(_ context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fiat, s.crypto, nil
}

// PlaceOrder accepts an order into the simulation. Market orders fill
// immediately at the current price.
func (s *SimulatedExchange) PlaceOrder(_ context.Context, symbol string, side models.OrderSide, orderType models.OrderType, quantity, price float64, clientOrderID string) (*models.RawOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.symbol {
		return nil, fmt.Errorf("unknown symbol %q, simulator trades %q", symbol, s.symbol)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %.8f", quantity)
	}
	if orderType == models.Market && s.currentPrice <= 0 {
		return nil, fmt.Errorf("cannot fill market order before market data is loaded")
	}

	o := &simOrder{
		id:            s.nextOrderID,
		clientOrderID: clientOrderID,
		side:          side,
		orderType:     orderType,
		price:         price,
		quantity:      quantity,
		status:        "NEW",
		createdAt:     s.currentTime,
		updatedAt:     s.currentTime,
	}
	s.nextOrderID++

	if orderType == models.Market {
		o.status = "FILLED"
		o.executedQty = quantity
		o.avgPrice = s.currentPrice
		o.price = s.currentPrice
	}
	s.orders[o.id] = o
	return s.toRaw(o), nil
}

// CancelOrder cancels a resting order. Already-terminal orders cannot be
// cancelled.
func (s *SimulatedExchange) CancelOrder(_ context.Context, _, orderID string) (*models.RawOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.lookup(orderID)
	if err != nil {
		return nil, err
	}
	if o.status != "NEW" {
		return nil, fmt.Errorf("order %s is %s and cannot be cancelled", orderID, o.status)
	}
	o.status = "CANCELED"
	o.updatedAt = s.currentTime
	return s.toRaw(o), nil
}

// FetchOrder returns the current payload of an order.
func (s *SimulatedExchange) FetchOrder(_ context.Context, _, orderID string) (*models.RawOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.lookup(orderID)
	if err != nil {
		return nil, &DataFetchError{Op: "order status", Err: err}
	}
	return s.toRaw(o), nil
}

func (s *SimulatedExchange) lookup(orderID string) (*simOrder, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q", orderID)
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return o, nil
}

func (s *SimulatedExchange) toRaw(o *simOrder) *models.RawOrder {
	return &models.RawOrder{
		Symbol:        s.symbol,
		OrderID:       o.id,
		ClientOrderID: o.clientOrderID,
		Price:         strconv.FormatFloat(o.price, 'f', -1, 64),
		AvgPrice:      strconv.FormatFloat(o.avgPrice, 'f', -1, 64),
		OrigQty:       strconv.FormatFloat(o.quantity, 'f', -1, 64),
		ExecutedQty:   strconv.FormatFloat(o.executedQty, 'f', -1, 64),
		CumQuoteQty:   strconv.FormatFloat(o.executedQty*o.avgPrice, 'f', -1, 64),
		Status:        o.status,
		TimeInForce:   "GTC",
		Type:          string(o.orderType),
		Side:          string(o.side),
		Time:          o.createdAt,
		UpdateTime:    o.updatedAt,
	}
}

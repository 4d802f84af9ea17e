package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grid-engine-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// LiveExchange talks to a Binance-style spot REST API. Paper trading uses the
// same implementation pointed at the testnet URLs.
type LiveExchange struct {
	apiKey     string
	secretKey  string
	baseURL    string
	wsBaseURL  string
	baseAsset  string
	quoteAsset string
	httpClient *http.Client
	logger     *zap.SugaredLogger
	timeOffset int64
}

// NewLiveExchange creates the adapter and syncs the local clock against the
// server so signed requests carry an accepted timestamp.
func NewLiveExchange(ctx context.Context, apiKey, secretKey, baseURL, wsBaseURL, symbol string, logger *zap.SugaredLogger) (*LiveExchange, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return nil, err
	}
	e := &LiveExchange{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		wsBaseURL:  strings.TrimRight(wsBaseURL, "/"),
		baseAsset:  base,
		quoteAsset: quote,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	if err := e.syncTime(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync time with exchange: %w", err)
	}
	return e, nil
}

func (e *LiveExchange) syncTime(ctx context.Context) error {
	data, err := e.doRequest(ctx, http.MethodGet, "/api/v3/time", nil, false)
	if err != nil {
		return err
	}
	var serverTime struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(data, &serverTime); err != nil {
		return err
	}
	e.timeOffset = serverTime.ServerTime - time.Now().UnixMilli()
	e.logger.Infof("Synced time with exchange, offset %dms", e.timeOffset)
	return nil
}

// doRequest signs (when required) and executes one REST call, surfacing API
// error payloads as *models.Error.
func (e *LiveExchange) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	queryParams := url.Values{}
	for k, v := range params {
		queryParams[k] = v
	}

	var encodedParams string
	if signed {
		timestamp := time.Now().UnixMilli() + e.timeOffset
		queryParams.Set("timestamp", strconv.FormatInt(timestamp, 10))
		payload := queryParams.Encode()
		encodedParams = fmt.Sprintf("%s&signature=%s", payload, e.sign(payload))
	} else {
		encodedParams = queryParams.Encode()
	}

	fullURL := e.baseURL + endpoint
	var req *http.Request
	var err error
	if method == http.MethodGet {
		if encodedParams != "" {
			fullURL = fullURL + "?" + encodedParams
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(encodedParams))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("X-MBX-APIKEY", e.apiKey)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiError models.Error
	if json.Unmarshal(body, &apiError) == nil && apiError.Code != 0 {
		return body, &apiError
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("API request failed, status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (e *LiveExchange) sign(data string) string {
	h := hmac.New(sha256.New, []byte(e.secretKey))
	h.Write([]byte(data))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// GetCurrentPrice returns the last traded price for the symbol.
func (e *LiveExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := e.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return 0, &DataFetchError{Op: "ticker price", Err: err}
	}
	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(data, &ticker); err != nil {
		return 0, &DataFetchError{Op: "ticker price", Err: err}
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, &DataFetchError{Op: "ticker price", Err: err}
	}
	return price, nil
}

// GetBalances returns the free quote and base asset balances of the account.
func (e *LiveExchange) GetBalances(ctx context.Context) (float64, float64, error) {
	data, err := e.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return 0, 0, &DataFetchError{Op: "account balances", Err: err}
	}

	var account struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(data, &account); err != nil {
		return 0, 0, &DataFetchError{Op: "account balances", Err: err}
	}

	var fiat, crypto float64
	for _, b := range account.Balances {
		switch b.Asset {
		case e.quoteAsset:
			fiat, _ = strconv.ParseFloat(b.Free, 64)
		case e.baseAsset:
			crypto, _ = strconv.ParseFloat(b.Free, 64)
		}
	}
	return fiat, crypto, nil
}

// PlaceOrder submits a spot order. Limit orders are placed GTC.
func (e *LiveExchange) PlaceOrder(ctx context.Context, symbol string, side models.OrderSide, orderType models.OrderType, quantity, price float64, clientOrderID string) (*models.RawOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", string(orderType))
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newOrderRespType", "FULL")
	if orderType == models.Limit {
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	data, err := e.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		e.logger.Errorw("Order placement rejected by exchange", "error", err, "response", string(data))
		return nil, err
	}

	var raw models.RawOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return &raw, nil
}

// CancelOrder cancels an open order and returns its final payload.
func (e *LiveExchange) CancelOrder(ctx context.Context, symbol, orderID string) (*models.RawOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	data, err := e.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}
	var raw models.RawOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cancel response: %w", err)
	}
	return &raw, nil
}

// FetchOrder queries the current payload of an order by exchange ID.
func (e *LiveExchange) FetchOrder(ctx context.Context, symbol, orderID string) (*models.RawOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	data, err := e.doRequest(ctx, http.MethodGet, "/api/v3/order", params, true)
	if err != nil {
		return nil, &DataFetchError{Op: "order status", Err: err}
	}
	var raw models.RawOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DataFetchError{Op: "order status", Err: err}
	}
	return &raw, nil
}

// StreamPrices connects to the mini-ticker websocket stream and delivers
// price ticks until the context is cancelled. The returned channel is closed
// when the stream ends.
func (e *LiveExchange) StreamPrices(ctx context.Context, symbol string) (<-chan PriceTick, error) {
	streamURL := fmt.Sprintf("%s/ws/%s@miniTicker", e.wsBaseURL, strings.ToLower(symbol))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ticker stream: %w", err)
	}

	out := make(chan PriceTick)
	go func() {
		defer close(out)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var msg struct {
				ClosePrice string `json:"c"`
				EventTime  int64  `json:"E"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					e.logger.Errorf("Ticker stream read failed: %v", err)
				}
				return
			}
			price, err := strconv.ParseFloat(msg.ClosePrice, 64)
			if err != nil || price <= 0 {
				continue
			}
			tick := PriceTick{Price: price, Time: time.UnixMilli(msg.EventTime)}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
